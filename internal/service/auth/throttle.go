package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"
)

// Throttle states.
type ThrottleState string

const (
	StateOpen        ThrottleState = "open"
	StateSoftLimited ThrottleState = "soft_limited"
	StateHardLimited ThrottleState = "hard_limited"
)

const (
	// attemptCounterTTL bounds how long failed attempts accumulate.
	attemptCounterTTL = time.Hour

	// hardLockout is effectively permanent; clearing it requires a
	// successful authentication after an administrative counter reset.
	hardLockout = 365 * 24 * time.Hour
)

// AttemptStore is the shared, atomically-updatable counter store behind the
// throttle. Counters are shared across processes, so increments must not
// lose updates under concurrent failures.
type AttemptStore interface {
	// Increment atomically bumps the counter, initializing it with ttl when
	// absent, and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetLockout opens a lockout window for the key.
	SetLockout(ctx context.Context, key string, d time.Duration) error

	// LockoutRemaining returns the time left on the key's lockout window,
	// zero when none is active.
	LockoutRemaining(ctx context.Context, key string) (time.Duration, error)

	// Clear removes both the counter and any lockout window.
	Clear(ctx context.Context, key string) error
}

// ThrottleKey builds the composite throttle key from a login identifier and
// its origin IP.
func ThrottleKey(identifier, ip string) string {
	return strings.ToLower(strings.TrimSpace(identifier)) + "|" + ip
}

// Throttle gates login attempts per (identifier, origin) key and escalates
// repeated failures to time-boxed lockouts.
type Throttle struct {
	store  AttemptStore
	logger *slog.Logger
	soft   int
	hard   int
	block  time.Duration
}

// NewThrottle constructs a Throttle. A threshold of zero disables that tier.
func NewThrottle(store AttemptStore, logger *slog.Logger, softAttempts, hardAttempts, blockMinutes int) *Throttle {
	return &Throttle{
		store:  store,
		logger: logger,
		soft:   softAttempts,
		hard:   hardAttempts,
		block:  time.Duration(blockMinutes) * time.Minute,
	}
}

// AvailableIn returns how long the key remains locked out. Callers must
// check this before any credential comparison and fail fast when positive.
func (t *Throttle) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	return t.store.LockoutRemaining(ctx, key)
}

// RegisterFailure counts one failed attempt and applies the transition
// rule: reaching the hard threshold locks the key out for ~1 year, the soft
// threshold for the configured block window.
func (t *Throttle) RegisterFailure(ctx context.Context, key string) (ThrottleState, error) {
	attempts, err := t.store.Increment(ctx, key, attemptCounterTTL)
	if err != nil {
		return StateOpen, err
	}
	switch {
	case t.hard > 0 && attempts >= int64(t.hard):
		if err := t.store.SetLockout(ctx, key, hardLockout); err != nil {
			return StateOpen, err
		}
		t.logger.Warn("login key hard limited", "key", key, "attempts", attempts)
		return StateHardLimited, nil
	case t.soft > 0 && attempts >= int64(t.soft):
		if err := t.store.SetLockout(ctx, key, t.block); err != nil {
			return StateOpen, err
		}
		t.logger.Info("login key soft limited", "key", key, "attempts", attempts,
			"block", t.block.String())
		return StateSoftLimited, nil
	default:
		return StateOpen, nil
	}
}

// Reset clears the attempt counter and any pending lockout window. Invoked
// on successful authentication; the only path back to Open.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	return t.store.Clear(ctx, key)
}

// ThrottledError is the fail-fast outcome when a lockout window is active.
// It never reveals whether the credential itself was valid.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many login attempts, try again in %d seconds", int(e.RetryAfter.Seconds()))
}

// RetryAfterSeconds rounds up for user-facing messages.
func (e *ThrottledError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
