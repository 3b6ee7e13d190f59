package membus

import (
	"testing"
	"time"

	"github.com/craftapp/craftd/internal/domain/event"
)

func TestWindowLimiterBudget(t *testing.T) {
	l := newWindowLimiter(10, nil)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	for i := range 10 {
		if !l.allow(event.TypeLabelAdd, now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("emission %d should be within budget", i+1)
		}
	}
	if l.allow(event.TypeLabelAdd, now.Add(11*time.Second)) {
		t.Error("11th emission within the window must be denied")
	}
}

func TestWindowSlides(t *testing.T) {
	l := newWindowLimiter(1, nil)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	if !l.allow(event.TypeLabelAdd, now) {
		t.Fatal("first emission must pass")
	}
	if l.allow(event.TypeLabelAdd, now.Add(59*time.Second)) {
		t.Error("emission inside the trailing window must be denied")
	}
	if !l.allow(event.TypeLabelAdd, now.Add(61*time.Second)) {
		t.Error("emission after the window slides past the first must pass")
	}
}

func TestWindowPerTypeIsolation(t *testing.T) {
	l := newWindowLimiter(1, nil)
	now := time.Now()

	if !l.allow(event.TypeLabelAdd, now) {
		t.Fatal("first LabelAdd must pass")
	}
	if l.allow(event.TypeLabelAdd, now) {
		t.Fatal("second LabelAdd must be denied")
	}
	if !l.allow(event.TypeFlagChange, now) {
		t.Error("another type must keep its own budget")
	}
}

func TestWindowLimitOverrides(t *testing.T) {
	l := newWindowLimiter(2, map[event.Type]int{event.TypeSchedulerTick: 4})
	now := time.Now()

	for i := range 4 {
		if !l.allow(event.TypeSchedulerTick, now) {
			t.Fatalf("tick %d should be within the override budget", i+1)
		}
	}
	if l.allow(event.TypeSchedulerTick, now) {
		t.Error("tick beyond the override budget must be denied")
	}
	if got := l.limit(event.TypeLabelAdd); got != 2 {
		t.Errorf("expected default limit 2 for unlisted types, got %d", got)
	}
}
