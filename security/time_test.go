package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"well in the future", now.Add(time.Hour), false},
		{"well in the past", now.Add(-time.Hour), true},
		{"just past, within grace", now.Add(-time.Second), false},
		{"past the grace period", now.Add(-DefaultClockSkewGracePeriod - time.Second), true},
		{"zero time never expires", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
