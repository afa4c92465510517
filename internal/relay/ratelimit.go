package relay

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type limiterKey struct {
	relayID  string
	senderID int64
}

// Limiter is a bounded pool of token buckets keyed by relay and sender.
// Evicted senders start again with a full bucket.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	pool   *lru.Cache[limiterKey, *rate.Limiter]
}

// NewLimiter creates a pool holding at most size buckets
func NewLimiter(window time.Duration, size int) *Limiter {
	pool, err := lru.New[limiterKey, *rate.Limiter](size)
	if err != nil {
		// only returned for a non-positive size
		pool, _ = lru.New[limiterKey, *rate.Limiter](1024)
	}
	return &Limiter{window: window, pool: pool}
}

// Allow reports whether the sender may send one more message. perWindow <= 0 disables the limit.
func (l *Limiter) Allow(relayID string, senderID int64, perWindow int) bool {
	if perWindow <= 0 || l.window <= 0 {
		return true
	}
	every := rate.Every(l.window / time.Duration(perWindow))

	l.mu.Lock()
	key := limiterKey{relayID: relayID, senderID: senderID}
	lim, ok := l.pool.Get(key)
	if !ok {
		lim = rate.NewLimiter(every, perWindow)
		l.pool.Add(key, lim)
	} else if lim.Burst() != perWindow {
		lim.SetLimit(every)
		lim.SetBurst(perWindow)
	}
	l.mu.Unlock()

	return lim.Allow()
}
