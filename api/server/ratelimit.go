package server

import (
	"sync"
	"time"
)

// Progressive ban durations for clients that keep exceeding the limit.
var banDurations = []time.Duration{
	time.Minute,
	10 * time.Minute,
	time.Hour,
}

// RateLimiter is a per-client sliding-window limiter. Clients over the limit are banned for
// progressively longer periods.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	requests  map[string][]time.Time
	banned    map[string]time.Time
	banCounts map[string]int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		requests:  make(map[string][]time.Time),
		banned:    make(map[string]time.Time),
		banCounts: make(map[string]int),
		now:       time.Now,
	}
}

// Allow records a request from addr and reports whether it may proceed.
func (l *RateLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}
	if l.isBanned(addr, now) {
		return false
	}
	var recent []time.Time
	for _, t := range l.requests[addr] {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	l.requests[addr] = recent
	if len(recent) <= l.limit {
		return true
	}
	l.banCounts[addr]++
	n := l.banCounts[addr]
	if n > len(banDurations) {
		n = len(banDurations)
	}
	l.banned[addr] = now.Add(banDurations[n-1])
	delete(l.requests, addr)
	return false
}

// isBanned reports whether addr is banned. Caller holds l.mu.
func (l *RateLimiter) isBanned(addr string, now time.Time) bool {
	expiry, ok := l.banned[addr]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(l.banned, addr)
		return false
	}
	return true
}

// sweep drops clients whose requests have all left the window and bans that have expired.
// Caller holds l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	for addr, times := range l.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= l.window {
			delete(l.requests, addr)
		}
	}
	for addr, expiry := range l.banned {
		if now.After(expiry) {
			delete(l.banned, addr)
		}
	}
	l.lastSweep = now
}
