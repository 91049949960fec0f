// Package timer implements a countdown whose progress is driven by measured
// wall-clock time rather than by the number of ticks the host delivers.
// A backgrounded or suspended host may deliver ticks late or not at all;
// the engine reconciles the difference from timestamps on the next tick,
// on pause, and on visibility changes.
package timer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidDuration rejects non-positive durations. No state changes.
	ErrInvalidDuration = errors.New("timer: duration must be positive")
	// ErrStopped is returned by mutating calls after Stop.
	ErrStopped = errors.New("timer: engine stopped")
	// ErrCompleted is returned when adjusting a phase that already finished.
	ErrCompleted = errors.New("timer: phase completed")
)

// State is the engine lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TickFunc receives whole seconds remaining (rounded up) and percent complete.
type TickFunc func(remainingSeconds int, progressPercent float64)

// DefaultTickInterval is how often the scheduler samples the clock.
const DefaultTickInterval = 100 * time.Millisecond

// Engine is a countdown for one phase.
type Engine struct {
	mu sync.Mutex

	clock    Clock
	sched    Scheduler
	interval time.Duration
	vis      VisibilitySource

	duration  time.Duration
	remaining time.Duration
	state     State

	// lastTick is the wall-clock instant up to which elapsed time has been
	// charged to remaining. Zero unless running.
	lastTick   time.Time
	cancelTick func()
	gen        uint64

	// Set while the host is hidden and the engine was running when it left.
	hiddenAt     time.Time
	resumeOnShow bool

	unsubscribe func()
	detached    atomic.Bool

	onTick     TickFunc
	onComplete func()
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithVisibility subscribes the engine to host visibility changes until Stop
// or completion.
func WithVisibility(v VisibilitySource) Option {
	return func(e *Engine) { e.vis = v }
}

// New creates an idle engine for a phase of the given duration.
func New(duration time.Duration, onTick TickFunc, onComplete func(), opts ...Option) (*Engine, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, duration)
	}
	e := &Engine{
		clock:      SystemClock{},
		sched:      TickerScheduler{},
		interval:   DefaultTickInterval,
		duration:   duration,
		remaining:  duration,
		state:      Idle,
		onTick:     onTick,
		onComplete: onComplete,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.vis != nil {
		e.unsubscribe = e.vis.Subscribe(e.handleVisibility)
	}
	return e, nil
}

// Start begins or resumes ticking. It is a no-op unless idle or paused.
func (e *Engine) Start() {
	e.mu.Lock()
	now := e.clock.Now()
	notify := e.settleHiddenLocked(now)
	if e.state == Idle || e.state == Paused {
		e.runLocked(now)
	}
	e.mu.Unlock()
	e.deliver(notify)
}

// Pause folds elapsed time into the remaining time and stops ticking.
func (e *Engine) Pause() {
	e.mu.Lock()
	now := e.clock.Now()
	notify := e.settleHiddenLocked(now)
	if e.state == Running {
		notify = append(notify, e.haltLocked(now)...)
	}
	e.mu.Unlock()
	e.deliver(notify)
}

// SetDuration changes the phase length while keeping the completed fraction.
// A running engine keeps running without a visible gap.
func (e *Engine) SetDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}

	e.mu.Lock()
	switch e.state {
	case Stopped:
		e.mu.Unlock()
		return ErrStopped
	case Completed:
		e.mu.Unlock()
		return ErrCompleted
	}

	now := e.clock.Now()
	notify := e.settleHiddenLocked(now)
	wasRunning := e.state == Running
	if wasRunning {
		notify = append(notify, e.haltLocked(now)...)
		if e.state == Completed {
			e.mu.Unlock()
			e.deliver(notify)
			return nil
		}
	}

	e.remaining = rescale(e.remaining, e.duration, d)
	e.duration = d
	if wasRunning {
		e.runLocked(now)
	}
	notify = append(notify, e.tickNotificationLocked())
	e.mu.Unlock()
	e.deliver(notify)
	return nil
}

// Stop halts the engine permanently and detaches the visibility listener.
// No callbacks fire after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	e.settleHiddenLocked(now)
	if e.state == Running {
		elapsed := now.Sub(e.lastTick)
		if elapsed > 0 {
			e.remaining -= min(elapsed, e.remaining)
		}
	}
	e.cancelLocked()
	e.state = Stopped
	e.mu.Unlock()
	e.detach()
}

// Remaining returns the time left, including time elapsed since the last tick.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return e.remaining
	}
	elapsed := e.clock.Now().Sub(e.lastTick)
	if elapsed <= 0 {
		return e.remaining
	}
	return max(e.remaining-elapsed, 0)
}

// RemainingSeconds returns the remaining time rounded up to whole seconds.
func (e *Engine) RemainingSeconds() int {
	return ceilSeconds(e.Remaining())
}

// Duration returns the configured phase length.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Progress returns the completed percentage in [0, 100].
func (e *Engine) Progress() float64 {
	rem := e.Remaining()
	e.mu.Lock()
	defer e.mu.Unlock()
	return percent(e.duration, rem)
}

// IsRunning reports whether the engine is actively ticking.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Running
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if e.state != Running || gen != e.gen {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	elapsed := now.Sub(e.lastTick)

	var notify []func()
	switch {
	case elapsed < 0:
		// Clock stepped backwards; restart measurement from here.
		e.lastTick = now
	case elapsed >= e.remaining:
		notify = e.completeLocked()
	case elapsed >= time.Second:
		whole := elapsed.Truncate(time.Second)
		e.remaining -= whole
		e.lastTick = e.lastTick.Add(whole)
		notify = append(notify, e.tickNotificationLocked())
	}
	e.mu.Unlock()
	e.deliver(notify)
}

// handleVisibility applies a host visibility change. Event timestamps may
// come from another clock, so they are clamped to the engine's own timeline:
// a hide lands between the last charged instant and now, a show between the
// hide and now.
func (e *Engine) handleVisibility(ev VisibilityEvent) {
	e.mu.Lock()
	now := e.clock.Now()
	var notify []func()
	if ev.Hidden {
		if e.state == Running {
			at := clampTime(ev.At, e.lastTick, now)
			notify = e.haltLocked(at)
			if e.state == Paused {
				e.hiddenAt = at
				e.resumeOnShow = true
			}
		}
	} else if e.resumeOnShow {
		at := clampTime(ev.At, e.hiddenAt, now)
		notify = e.settleHiddenLocked(at)
		if e.state == Paused {
			e.runLocked(at)
			notify = append(notify, e.tickNotificationLocked())
		}
	}
	e.mu.Unlock()
	e.deliver(notify)
}

func clampTime(t, lo, hi time.Time) time.Time {
	if t.IsZero() || t.After(hi) {
		return hi
	}
	if t.Before(lo) {
		return lo
	}
	return t
}

// settleHiddenLocked charges the time spent hidden to the phase. The engine
// stays paused; callers decide whether to resume.
func (e *Engine) settleHiddenLocked(now time.Time) []func() {
	if !e.resumeOnShow {
		return nil
	}
	e.resumeOnShow = false
	hidden := now.Sub(e.hiddenAt)
	e.hiddenAt = time.Time{}
	if hidden <= 0 || e.state != Paused {
		return nil
	}
	if hidden >= e.remaining {
		return e.completeLocked()
	}
	e.remaining -= hidden
	return nil
}

// haltLocked folds elapsed time up to now and leaves the engine paused, or
// completed if the phase ran out.
func (e *Engine) haltLocked(now time.Time) []func() {
	elapsed := now.Sub(e.lastTick)
	if elapsed >= e.remaining {
		return e.completeLocked()
	}
	if elapsed > 0 {
		e.remaining -= elapsed
	}
	e.cancelLocked()
	e.state = Paused
	return nil
}

func (e *Engine) runLocked(now time.Time) {
	e.cancelLocked()
	e.state = Running
	e.lastTick = now
	e.gen++
	gen := e.gen
	e.cancelTick = e.sched.Every(e.interval, func() { e.tick(gen) })
}

func (e *Engine) cancelLocked() {
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
	e.lastTick = time.Time{}
}

func (e *Engine) completeLocked() []func() {
	e.cancelLocked()
	e.remaining = 0
	e.state = Completed
	e.resumeOnShow = false
	notify := []func(){e.detach}
	if e.onComplete != nil {
		notify = append(notify, e.onComplete)
	}
	return notify
}

func (e *Engine) tickNotificationLocked() func() {
	secs := ceilSeconds(e.remaining)
	pct := percent(e.duration, e.remaining)
	return func() {
		if e.onTick != nil {
			e.onTick(secs, pct)
		}
	}
}

// deliver runs callbacks outside the lock so they may call back into the
// engine. Nothing is delivered once Stop has run.
func (e *Engine) deliver(notify []func()) {
	for _, fn := range notify {
		if e.State() == Stopped {
			return
		}
		fn()
	}
}

func (e *Engine) detach() {
	if !e.detached.CompareAndSwap(false, true) {
		return
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func rescale(remaining, oldDuration, newDuration time.Duration) time.Duration {
	if oldDuration <= 0 {
		return newDuration
	}
	frac := float64(remaining) / float64(oldDuration)
	out := time.Duration(math.Round(float64(newDuration) * frac))
	if out <= 0 && remaining > 0 {
		out = 1
	}
	return min(out, newDuration)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func percent(duration, remaining time.Duration) float64 {
	if duration <= 0 {
		return 100
	}
	return float64(duration-remaining) / float64(duration) * 100
}
