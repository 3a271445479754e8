package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/http/handlers"
	"truck-dispatch/internal/http/middleware/ratelimit"
	"truck-dispatch/internal/http/pprofserver"
	"truck-dispatch/internal/http/router"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/service/acceptance"
	"truck-dispatch/internal/service/broadcast"
	"truck-dispatch/internal/service/cancellation"
	"truck-dispatch/internal/transport/pubsub"
)

func newBroadcastHandler(
	logger logx.Logger,
	b *broadcast.Service,
	a *acceptance.Service,
	c *cancellation.Service,
) *handlers.BroadcastHandler {
	return handlers.NewBroadcastHandler(logger, b, a, c)
}

func newEventsHandler(logger logx.Logger, bus *pubsub.Bus) *handlers.EventsHandler {
	return handlers.NewEventsHandler(logger, bus)
}

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock, rdb redis.UniversalClient) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NewNopLimiter()
	}
	return ratelimit.NewWindowLimiter(rdb, clock, rl.Limit, rl.Window)
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.ClockFunc(time.Now)
}

type rateLimitIn struct {
	dig.In

	Logger  logx.Logger
	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Counter, in.Limiter)
}

type routerIn struct {
	dig.In

	Logger     logx.Logger
	Base       *handlers.Handlers
	Broadcasts *handlers.BroadcastHandler
	Events     *handlers.EventsHandler
	RateLimit  *ratelimit.Middleware
	Gatherer   prometheus.Gatherer
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Deps{
		Logger:     in.Logger,
		Base:       in.Base,
		Broadcasts: in.Broadcasts,
		Events:     in.Events,
		RateLimit:  in.RateLimit,
		Gatherer:   in.Gatherer,
	})
}

// newServer builds the API server. The event stream lifts WriteTimeout per response.
func newServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func newPprofServer(cfg *config.Config) *http.Server {
	return pprofserver.New(cfg.Pprof)
}

func registerHTTP(container *dig.Container) error {
	if err := provideAll(container,
		handlers.New,
		newBroadcastHandler,
		newEventsHandler,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newRouter,
		newServer,
	); err != nil {
		return err
	}
	if err := container.Provide(newPprofServer, dig.Name("pprof_server")); err != nil {
		return fmt.Errorf("provide pprof server: %w", err)
	}
	return nil
}
