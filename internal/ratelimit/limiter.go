// Package ratelimit implements a sliding-window attempt counter with lockout
// on top of the shared key-value store. It is a defense-in-depth layer in
// front of credential checking, so on store failure it fails open by default:
// login availability wins over strict enforcement.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a limit check.
type Result struct {
	Allowed     bool
	Attempts    int
	LockedUntil *time.Time
}

// Policy controls window size, thresholds, and failure behavior.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
	// Lockout, when non-zero, sets an absolute-expiry block once the window
	// limit is hit. While the marker is unexpired every check short-circuits
	// to blocked regardless of window state.
	Lockout time.Duration
	// FailOpen allows requests when the store is unreachable. Intentional
	// availability trade-off, kept as an explicit flag so both behaviors are
	// testable.
	FailOpen bool
}

// Limiter tracks attempts per client key in a redis sorted set, one
// timestamped member per attempt, pruned to the trailing window before
// counting.
type Limiter struct {
	client *redis.Client
	policy Policy
	logger *slog.Logger
}

func New(client *redis.Client, policy Policy, logger *slog.Logger) *Limiter {
	return &Limiter{
		client: client,
		policy: policy,
		logger: logger,
	}
}

func attemptsKey(clientKey string) string {
	return "rl:att:" + clientKey
}

func lockKey(clientKey string) string {
	return "rl:lock:" + clientKey
}

// Check reports whether another attempt is allowed for the key. It does not
// record anything; callers record the attempt separately so a blocked
// request does not extend its own lockout window.
func (l *Limiter) Check(ctx context.Context, clientKey string) (Result, error) {
	// Lockout marker first: it is authoritative while unexpired and clears
	// lazily via its TTL.
	lockTTL, err := l.client.PTTL(ctx, lockKey(clientKey)).Result()
	if err != nil {
		return l.failMode(clientKey, err)
	}
	if lockTTL > 0 {
		until := time.Now().Add(lockTTL)
		return Result{Allowed: false, LockedUntil: &until}, nil
	}

	now := time.Now()
	windowStart := now.Add(-l.policy.Window)

	// Prune and count atomically so concurrent checkers see a consistent
	// window.
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, attemptsKey(clientKey), "0", fmt.Sprintf("%d", windowStart.UnixMilli()))
	card := pipe.ZCard(ctx, attemptsKey(clientKey))
	if _, err := pipe.Exec(ctx); err != nil {
		return l.failMode(clientKey, err)
	}

	attempts := int(card.Val())
	if attempts < l.policy.MaxAttempts {
		return Result{Allowed: true, Attempts: attempts}, nil
	}

	res := Result{Allowed: false, Attempts: attempts}
	if l.policy.Lockout > 0 {
		until := now.Add(l.policy.Lockout)
		if err := l.client.Set(ctx, lockKey(clientKey), until.UnixMilli(), l.policy.Lockout).Err(); err != nil {
			l.logger.Error("failed to set lockout marker",
				slog.String("client_key", clientKey),
				slog.Any("error", err))
		}
		res.LockedUntil = &until
	}
	return res, nil
}

// RecordAttempt appends a timestamped member for the key. The member carries
// a UUID suffix so concurrent attempts in the same millisecond are not
// collapsed, which would under-count.
func (l *Limiter) RecordAttempt(ctx context.Context, clientKey string) error {
	now := time.Now()

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, attemptsKey(clientKey), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()),
	})
	pipe.PExpire(ctx, attemptsKey(clientKey), l.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("failed to record attempt",
			slog.String("client_key", clientKey),
			slog.Any("error", err))
		return err
	}
	return nil
}

// Reset clears the window and any lockout for the key, e.g. after a
// successful authentication.
func (l *Limiter) Reset(ctx context.Context, clientKey string) error {
	if err := l.client.Del(ctx, attemptsKey(clientKey), lockKey(clientKey)).Err(); err != nil {
		l.logger.Error("failed to reset rate limit",
			slog.String("client_key", clientKey),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (l *Limiter) failMode(clientKey string, err error) (Result, error) {
	if l.policy.FailOpen {
		l.logger.Error("rate limit store unreachable, failing open",
			slog.String("client_key", clientKey),
			slog.Any("error", err))
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false}, fmt.Errorf("rate limit check failed: %w", err)
}
