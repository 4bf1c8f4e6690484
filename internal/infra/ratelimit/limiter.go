// internal/infra/ratelimit/limiter.go
package ratelimit

import (
	"sync"
	"time"

	"chore_notifier/internal/domain/notification"
)

type key struct {
	recipient string
	channel   notification.Channel
}

type window struct {
	mu    sync.Mutex
	times []time.Time
}

// Limiter tracks send counts per (recipient, channel) over a sliding window.
// State is ephemeral and process-wide; expired entries are pruned lazily on
// access rather than by a background timer. Each key carries its own lock so
// unrelated recipients never contend.
type Limiter struct {
	window  time.Duration
	max     int
	entries sync.Map // key -> *window
	now     func() time.Time
}

// New returns a limiter allowing max sends per window per key.
func New(windowSize time.Duration, max int) *Limiter {
	return &Limiter{window: windowSize, max: max, now: time.Now}
}

// NewWithClock is New with an injectable clock.
func NewWithClock(windowSize time.Duration, max int, now func() time.Time) *Limiter {
	return &Limiter{window: windowSize, max: max, now: now}
}

func (l *Limiter) entry(recipient string, ch notification.Channel) *window {
	v, _ := l.entries.LoadOrStore(key{recipient: recipient, channel: ch}, &window{})
	return v.(*window)
}

// Allow increments and checks the counter for (recipient, channel). When the
// cap is already reached it returns false without mutating further state.
func (l *Limiter) Allow(recipient string, ch notification.Channel) bool {
	w := l.entry(recipient, ch)
	w.mu.Lock()
	defer w.mu.Unlock()
	now := l.now()
	w.prune(now.Add(-l.window))
	if len(w.times) >= l.max {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// ResetAt returns when the oldest counted send for the key leaves the
// window, i.e. the earliest instant a deferred message may be retried.
func (l *Limiter) ResetAt(recipient string, ch notification.Channel) time.Time {
	w := l.entry(recipient, ch)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now().Add(-l.window))
	if len(w.times) == 0 {
		return l.now()
	}
	return w.times[0].Add(l.window)
}

// Occupancy snapshots the number of counted sends per channel across all
// recipients, for the status endpoint.
func (l *Limiter) Occupancy() map[notification.Channel]int {
	out := make(map[notification.Channel]int)
	cutoff := l.now().Add(-l.window)
	l.entries.Range(func(k, v interface{}) bool {
		w := v.(*window)
		w.mu.Lock()
		w.prune(cutoff)
		n := len(w.times)
		w.mu.Unlock()
		if n > 0 {
			out[k.(key).channel] += n
		}
		return true
	})
	return out
}

// prune drops timestamps at or before cutoff. Caller holds w.mu.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}
