package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"truck-dispatch/internal/http/handlers"
	dmw "truck-dispatch/internal/http/middleware"
	"truck-dispatch/internal/http/middleware/ratelimit"
	"truck-dispatch/internal/logx"
)

const requestTimeout = 10 * time.Second

// Deps groups what the router mounts.
type Deps struct {
	Logger     logx.Logger
	Base       *handlers.Handlers
	Broadcasts *handlers.BroadcastHandler
	Events     *handlers.EventsHandler
	RateLimit  *ratelimit.Middleware
	Gatherer   prometheus.Gatherer
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	if d.RateLimit == nil {
		d.RateLimit = ratelimit.New(d.Logger, nil, nil)
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(dmw.Observability(d.Logger))

	r.Get("/ping", d.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.NotFound(http.HandlerFunc(d.Base.NotFound))

	r.Route("/v1", func(r chi.Router) {
		r.Use(dmw.Identity)
		r.Use(d.RateLimit.Handler())

		r.Get("/events", d.Events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/broadcasts", d.Broadcasts.Create)
			r.Get("/broadcasts/{id}", d.Broadcasts.Get)
			r.Post("/broadcasts/{id}/accept", d.Broadcasts.Accept)
			r.Post("/broadcasts/{id}/cancel", d.Broadcasts.Cancel)
			r.Post("/broadcasts/{id}/close", d.Broadcasts.Close)
			r.Get("/transporters/me/broadcasts", d.Broadcasts.TransporterInbox)
		})
	})

	return r
}
