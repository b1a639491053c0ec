// Package ratelimit throttles abusive clients on the donor-facing endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether one more request from key is allowed now.
type Limiter interface {
	Allow(key string) bool
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(string) bool { return true }

// SlidingWindow allows at most Limit requests per key in any Window.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   map[string][]time.Time{},
	}
}

// WithClock replaces the time source, for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

func (l *SlidingWindow) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)

	// drop idle keys so the map doesn't grow with every client ever seen
	if len(l.hits) > 4096 {
		l.sweep(cutoff)
	}
	return true
}

func (l *SlidingWindow) sweep(cutoff time.Time) {
	for k, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
}
