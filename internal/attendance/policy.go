package attendance

import "time"

// IsExpired reports whether the code's expiry has passed. A code with no
// expiry never expires by time, though it can still be deactivated.
func IsExpired(code Code, now time.Time) bool {
	return code.ExpiresAt != nil && code.ExpiresAt.Before(now)
}

// IsUsable reports whether the code currently authorizes check-in.
func IsUsable(code Code, now time.Time) bool {
	return code.IsActive && !IsExpired(code, now)
}

// TimeRemaining returns how long the code stays usable. ok is false when the
// code never expires.
func TimeRemaining(code Code, now time.Time) (remaining time.Duration, ok bool) {
	if code.ExpiresAt == nil {
		return 0, false
	}
	remaining = code.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
