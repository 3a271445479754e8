package middleware

import (
	"context"
	"net/http"
	"strings"

	"truck-dispatch/internal/domain"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderCustomerID    = "X-Customer-ID"
	HeaderTransporterID = "X-Transporter-ID"
	HeaderDriverID      = "X-Driver-ID"
)

type identityKey struct{}

// Caller is the authenticated principal of a request. Any subset may be set.
type Caller struct {
	CustomerID    string
	TransporterID string
	DriverID      string
}

// Rooms returns the fanout rooms the caller may observe.
func (c Caller) Rooms() []string {
	var out []string
	if c.CustomerID != "" {
		out = append(out, domain.CustomerRoom(c.CustomerID))
	}
	if c.TransporterID != "" {
		out = append(out, domain.TransporterRoom(c.TransporterID))
	}
	if c.DriverID != "" {
		out = append(out, domain.DriverRoom(c.DriverID))
	}
	return out
}

// Key identifies the caller for per-caller limits; empty when anonymous.
func (c Caller) Key() string {
	switch {
	case c.CustomerID != "":
		return domain.CustomerRoom(c.CustomerID)
	case c.TransporterID != "":
		return domain.TransporterRoom(c.TransporterID)
	case c.DriverID != "":
		return domain.DriverRoom(c.DriverID)
	default:
		return ""
	}
}

// Identity reads the trusted identity headers into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Caller{
			CustomerID:    strings.TrimSpace(r.Header.Get(HeaderCustomerID)),
			TransporterID: strings.TrimSpace(r.Header.Get(HeaderTransporterID)),
			DriverID:      strings.TrimSpace(r.Header.Get(HeaderDriverID)),
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
	})
}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, identityKey{}, c)
}

// CallerFrom returns the caller stored by Identity.
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(identityKey{}).(Caller)
	return c
}
