// Package lockout implements the brute-force lockout state machine over a
// user's failed-attempt counter.
package lockout

import (
	"time"

	"github.com/outpost-labs/warden/internal/domain"
)

// Policy holds the lockout tunables. Threshold is compared against the
// post-increment counter, so the Nth failure is the one that locks.
type Policy struct {
	Threshold    int
	LockDuration time.Duration
}

// Default mirrors the production configuration defaults.
var Default = Policy{Threshold: 5, LockDuration: 2 * time.Hour}

// IsLocked reports whether the account is locked at the given instant:
// true iff lockUntil is set and strictly in the future.
func (p Policy) IsLocked(u *domain.User, now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// RecordFailure applies one failed attempt and returns the resulting
// counter and lock. An already-expired lock starts a fresh window: the
// counter resets to 1 and the lock clears before this failure counts.
func (p Policy) RecordFailure(u *domain.User, now time.Time) (attempts int, lockUntil *time.Time) {
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		return 1, nil
	}

	attempts = u.LoginAttempts + 1
	lockUntil = u.LockUntil
	if attempts >= p.Threshold && u.LockUntil == nil {
		t := now.Add(p.LockDuration)
		lockUntil = &t
	}
	return attempts, lockUntil
}

// RecordSuccess clears the counter and lock unconditionally.
func (p Policy) RecordSuccess(u *domain.User) (attempts int, lockUntil *time.Time) {
	return 0, nil
}
