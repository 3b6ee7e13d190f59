package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickInfo describes one scheduler tick.
type TickInfo struct {
	Timestamp time.Time // UTC
	LocalTime string    // HH:MM
	LocalDate string    // YYYY-MM-DD
	Hour      int
	Minute    int
	DayOfWeek int // 0 = Sunday
	DayName   string
}

// TickFunc handles one tick. Errors are logged and never stop the cadence.
type TickFunc func(ctx context.Context, info TickInfo) error

// Scheduler fires a tick once per minute, aligned to the wall-clock minute
// boundary: a one-shot timer covers the distance to the next :00, then a
// fixed interval keeps subsequent ticks aligned. Drift from the callback's
// own runtime is not compensated.
type Scheduler struct {
	tick TickFunc

	mu      sync.Mutex
	align   *time.Timer
	ticker  *time.Ticker
	stop    chan struct{}
	running bool

	now      func() time.Time
	interval time.Duration
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(tick TickFunc) *Scheduler {
	return &Scheduler{
		tick:     tick,
		now:      time.Now,
		interval: time.Minute,
	}
}

// Start arms the alignment timer. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	stop := make(chan struct{})
	s.stop = stop

	delay := delayToNextMinute(s.now())
	s.align = time.AfterFunc(delay, func() {
		select {
		case <-stop:
			return
		default:
		}
		s.fire()
		s.startInterval(stop)
	})
	slog.Debug("scheduler started", "first_tick_in", delay)
}

// startInterval begins the recurring cadence after the aligned first tick.
func (s *Scheduler) startInterval(stop chan struct{}) {
	s.mu.Lock()
	if s.stop != stop {
		// Stopped between the alignment timer firing and now.
		s.mu.Unlock()
		return
	}
	ticker := time.NewTicker(s.interval)
	s.ticker = ticker
	s.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.fire()
			}
		}
	}()
}

// fire computes the tick info and invokes the callback with containment.
func (s *Scheduler) fire() {
	info := tickInfoAt(s.now())
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panicked", "panic", r)
		}
	}()
	if err := s.tick(context.Background(), info); err != nil {
		slog.Warn("scheduler tick failed", "error", err)
	}
}

// Running reports whether the scheduler is between Start and Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop cancels whichever timer is active, alignment one-shot or recurring
// interval. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.align != nil {
		s.align.Stop()
		s.align = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	close(s.stop)
	s.stop = nil
}

// delayToNextMinute returns the time remaining until the next wall-clock
// minute boundary. Exactly on a boundary it returns a full minute.
func delayToNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// tickInfoAt derives the tick fields from one instant, using the instant's
// own location as the local clock.
func tickInfoAt(now time.Time) TickInfo {
	return TickInfo{
		Timestamp: now.UTC(),
		LocalTime: now.Format("15:04"),
		LocalDate: now.Format("2006-01-02"),
		Hour:      now.Hour(),
		Minute:    now.Minute(),
		DayOfWeek: int(now.Weekday()),
		DayName:   now.Weekday().String(),
	}
}
