package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ObservePool copies the current pool statistics into the db gauges.
func ObservePool(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
	DBPoolAcquireWaitSeconds.Set(stats.AcquireDuration().Seconds())
}

// CollectPool observes pool every interval until ctx is done.
func CollectPool(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ObservePool(pool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ObservePool(pool)
		case <-ctx.Done():
			return
		}
	}
}
