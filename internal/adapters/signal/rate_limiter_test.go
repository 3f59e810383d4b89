package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice@example.org"))
	assert.True(t, rl.Allow("alice@example.org"))
	assert.False(t, rl.Allow("alice@example.org"))
	assert.True(t, rl.Allow("bob@example.org"), "keys are independent")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("alice@example.org"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("x"))
	}
}
