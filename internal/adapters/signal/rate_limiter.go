package signal

import (
	"sync"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
)

// ChannelRateLimiter allows at most limit inbound frames per channel within
// a sliding interval.
type ChannelRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ChannelName][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewChannelRateLimiter(limit int, interval time.Duration) *ChannelRateLimiter {
	return &ChannelRateLimiter{
		history:  make(map[domain.ChannelName][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ChannelRateLimiter) Allow(ch domain.ChannelName) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[ch]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[ch] = fresh
		return false
	}
	rl.history[ch] = append(fresh, now)
	return true
}

// Forget drops the history of a closed channel.
func (rl *ChannelRateLimiter) Forget(ch domain.ChannelName) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, ch)
}
