package membus

import (
	"sync"
	"time"

	"github.com/craftapp/craftd/internal/domain/event"
)

// window is the rolling span over which emissions are counted.
const window = time.Minute

// windowLimiter enforces a per-event-type budget over a rolling window by
// keeping the timestamps of accepted emissions. Exhausting one type's
// budget never affects another type's.
type windowLimiter struct {
	defaultLimit int
	limits       map[event.Type]int

	mu       sync.Mutex
	accepted map[event.Type][]time.Time
}

func newWindowLimiter(defaultLimit int, limits map[event.Type]int) *windowLimiter {
	return &windowLimiter{
		defaultLimit: defaultLimit,
		limits:       limits,
		accepted:     make(map[event.Type][]time.Time),
	}
}

// limit returns the budget for one event type.
func (l *windowLimiter) limit(t event.Type) int {
	if n, ok := l.limits[t]; ok && n > 0 {
		return n
	}
	return l.defaultLimit
}

// allow records an emission at now if the type still has budget in the
// trailing window, and reports whether it was accepted. Timestamps older
// than the window are pruned on every call, so a type with no accepted
// emission for a full window starts from a clean count.
func (l *windowLimiter) allow(t event.Type, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-window)
	kept := l.accepted[t][:0]
	for _, ts := range l.accepted[t] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit(t) {
		l.accepted[t] = kept
		return false
	}
	l.accepted[t] = append(kept, now)
	return true
}
