package security

import "time"

// DefaultClockSkewGracePeriod is the grace applied to expiry checks so that
// minor time drift between cooperating servers does not cause false
// expiration failures. Entries may remain usable for up to this long past
// their nominal expiry, which is an accepted trade-off.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired checks an absolute expiry timestamp with the default grace period.
// A zero timestamp means no expiration.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks an absolute expiry timestamp with a custom
// grace period.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
