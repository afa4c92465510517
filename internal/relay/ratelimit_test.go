package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := NewLimiter(time.Hour, 16)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("r1", 1, 3), "message %d", i)
	}
	assert.False(t, l.Allow("r1", 1, 3))

	// buckets are per sender and per relay
	assert.True(t, l.Allow("r1", 2, 3))
	assert.True(t, l.Allow("r2", 1, 3))
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(time.Hour, 16)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("r1", 1, 0))
	}

	off := NewLimiter(0, 16)
	for i := 0; i < 100; i++ {
		assert.True(t, off.Allow("r1", 1, 1))
	}
}

func TestLimiterFollowsSettingChanges(t *testing.T) {
	l := NewLimiter(time.Hour, 16)

	assert.True(t, l.Allow("r1", 1, 1))
	assert.False(t, l.Allow("r1", 1, 1))

	l.Allow("r1", 1, 5)
	lim, ok := l.pool.Get(limiterKey{relayID: "r1", senderID: 1})
	require.True(t, ok)
	assert.Equal(t, 5, lim.Burst())
}

func TestLimiterEvictsOldestSender(t *testing.T) {
	l := NewLimiter(time.Hour, 2)

	assert.True(t, l.Allow("r1", 1, 1))
	assert.False(t, l.Allow("r1", 1, 1))

	l.Allow("r1", 2, 1)
	l.Allow("r1", 3, 1)

	assert.True(t, l.Allow("r1", 1, 1), "evicted sender starts with a full bucket")
}
