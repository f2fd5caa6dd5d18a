// Package ratelimit throttles actors per dispatch family and coalesces
// repeated writes through short-lived cooldowns.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxTracked bounds how many actors a single limiter remembers.
const maxTracked = 10000

// window counts an actor's actions since start.
type window struct {
	start time.Time
	count int
}

// Limiter allows each actor amount actions per interval. A window opens on
// the actor's first action and closes interval later; its entry expires
// with it.
type Limiter struct {
	mu       sync.Mutex
	amount   int
	interval time.Duration
	windows  *expirable.LRU[string, *window]
	now      func() time.Time
}

// New returns a limiter; amount <= 0 disables limiting.
func New(amount int, interval time.Duration) *Limiter {
	l := &Limiter{amount: amount, interval: interval, now: time.Now}
	if amount <= 0 || interval <= 0 {
		return l
	}
	l.windows = expirable.NewLRU[string, *window](maxTracked, nil, interval)
	return l
}

// Allow counts one action for actorID and reports whether it fits the budget.
func (l *Limiter) Allow(actorID string) bool {
	if l.windows == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows.Get(actorID)
	if !ok || now.Sub(w.start) >= l.interval {
		l.windows.Add(actorID, &window{start: now, count: 1})
		return true
	}
	if w.count >= l.amount {
		return false
	}
	w.count++
	return true
}

// Cooldown is a set of keys that each stay present for a fixed TTL.
type Cooldown struct {
	mu  sync.Mutex
	set *expirable.LRU[string, struct{}]
}

func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{set: expirable.NewLRU[string, struct{}](maxTracked, nil, ttl)}
}

// Begin starts a cooldown for key. It returns false if key is already cooling down.
func (c *Cooldown) Begin(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.set.Get(key); ok {
		return false
	}
	c.set.Add(key, struct{}{})
	return true
}

// Release ends the cooldown for key early.
func (c *Cooldown) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set.Remove(key)
}
