package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/repository"
	"truck-dispatch/internal/retry"
)

const connectAttemptTimeout = 3 * time.Second

var newPool = repository.NewPool

// connectWithRetry dials with a fixed delay between attempts. Cancellation of ctx is
// returned as ctx.Err() so the runner can tell shutdown from failure.
func connectWithRetry[T any](
	ctx context.Context,
	logger logx.Logger,
	name string,
	retries int,
	delay time.Duration,
	dial func(context.Context) (T, error),
) (T, error) {
	var out T
	attempt := 0
	policy := retry.Policy{
		Name:      name,
		Config:    retry.Config{MaxAttempts: retries, BaseDelay: delay, MaxDelay: delay},
		Retryable: func(error) bool { return true },
		Logger:    logger,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, connectAttemptTimeout)
		defer cancel()
		v, err := dial(attemptCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	logger.Info("connected", logx.String("target", name), logx.Int("attempt", attempt))
	return out, nil
}

func connectDbWithRetry(ctx context.Context, logger logx.Logger, dsn string, retries int, delay time.Duration) (*pgxpool.Pool, error) {
	return connectWithRetry(ctx, logger, "db connect", retries, delay, func(ctx context.Context) (*pgxpool.Pool, error) {
		return newPool(ctx, dsn)
	})
}
