package cache

// sweeper.go runs periodic maintenance for in-process caches.
//
// Memory caches drop expired entries lazily on Get. The sweeper removes the
// ones nobody asks for again so long-running processes don't hold stale
// payloads until they are evicted by size.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartSweeper gets a zero interval.
const DefaultSweepInterval = time.Minute

// Sweeper is implemented by caches that can drop expired entries eagerly.
type Sweeper interface {
	Sweep() int
}

// StartSweeper sweeps every cache that implements Sweeper once, then every
// interval until ctx is cancelled. Caches that don't implement it are
// skipped. It blocks; run it in its own goroutine.
func StartSweeper(ctx context.Context, interval time.Duration, caches ...Cache) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	var sweepers []Sweeper
	for _, c := range caches {
		if s, ok := c.(Sweeper); ok {
			sweepers = append(sweepers, s)
		}
	}
	if len(sweepers) == 0 {
		return
	}

	slog.Info("cache sweeper started", "caches", len(sweepers), "interval", interval)
	sweepAll(sweepers)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			sweepAll(sweepers)
		}
	}
}

func sweepAll(sweepers []Sweeper) {
	start := time.Now()
	removed := 0
	for _, s := range sweepers {
		removed += s.Sweep()
	}
	slog.Debug("cache sweep completed", "removed", removed, "duration_ms", time.Since(start).Milliseconds())
}
