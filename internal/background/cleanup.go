package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPruner deletes login attempts past their retention window.
type AttemptPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChallengeSweeper expires overdue pending challenges and deletes old
// resolved ones.
type ChallengeSweeper interface {
	ExpirePending(ctx context.Context) (int64, error)
	DeleteResolved(ctx context.Context, olderThan time.Time) (int64, error)
}

// SessionPruner deletes sessions long past expiry.
type SessionPruner interface {
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Cleaner periodically prunes expired rows: login attempts past retention,
// overdue challenges, and long-dead sessions. Expiry is enforced at read
// time everywhere; this keeps the tables from growing without bound.
type Cleaner struct {
	attempts   AttemptPruner
	challenges ChallengeSweeper
	sessions   SessionPruner
	interval   time.Duration
	retention  time.Duration
	logger     *slog.Logger
}

func NewCleaner(attempts AttemptPruner, challenges ChallengeSweeper, sessions SessionPruner, interval, retention time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		attempts:   attempts,
		challenges: challenges,
		sessions:   sessions,
		interval:   interval,
		retention:  retention,
		logger:     logger,
	}
}

// Run sweeps immediately and then on every tick until the context is
// cancelled. Blocking; callers start it in a goroutine.
func (c *Cleaner) Run(ctx context.Context) {
	c.Sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Each pruner failure is logged and the pass
// continues; a missed sweep is caught up on the next tick.
func (c *Cleaner) Sweep(ctx context.Context) {
	attempts, err := c.attempts.DeleteExpired(ctx)
	if err != nil {
		c.logger.Error("failed to prune login attempts", slog.Any("error", err))
	}

	expired, err := c.challenges.ExpirePending(ctx)
	if err != nil {
		c.logger.Error("failed to expire pending challenges", slog.Any("error", err))
	}

	resolved, err := c.challenges.DeleteResolved(ctx, time.Now().Add(-c.retention))
	if err != nil {
		c.logger.Error("failed to prune resolved challenges", slog.Any("error", err))
	}

	sessions, err := c.sessions.DeleteStale(ctx, time.Now().Add(-c.retention))
	if err != nil {
		c.logger.Error("failed to prune stale sessions", slog.Any("error", err))
	}

	c.logger.Info("cleanup sweep complete",
		slog.Int64("attempts_pruned", attempts),
		slog.Int64("challenges_expired", expired),
		slog.Int64("challenges_pruned", resolved),
		slog.Int64("sessions_pruned", sessions))
}
