package timer

import (
	"slices"
	"sync"
	"time"
)

// Clock supplies wall-clock time to the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler invokes fn repeatedly at roughly the given interval until the
// returned cancel func is called. Delivery may be late or skipped entirely
// (a suspended process delivers nothing), so callers must not count calls.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler drives fn from a time.Ticker on its own goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// ManualScheduler records scheduled callbacks and runs them only when Fire
// is called. It lets callers simulate an irregular or frozen host.
type ManualScheduler struct {
	mu    sync.Mutex
	next  int
	tasks map[int]func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[int]func())}
}

func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.tasks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tasks, id)
	}
}

// Fire runs every active callback once, in registration order.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.tasks[id]
		s.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// Active reports how many callbacks are currently scheduled.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
