// Package pomodoro runs work/break cycles. Each phase is driven by its own
// timer.Engine; a completed engine is discarded and the next phase gets a
// fresh one.
package pomodoro

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/timer"
)

var (
	// ErrAdjustTooLarge rejects a removal that would leave 30 seconds or less.
	ErrAdjustTooLarge  = errors.New("pomodoro: adjustment exceeds remaining phase length")
	ErrClosed          = errors.New("pomodoro: controller closed")
	ErrInvalidSettings = errors.New("pomodoro: invalid settings")
)

// minAfterRemoval is the slack a phase must keep when time is removed.
const minAfterRemoval = 30 * time.Second

type Phase int

const (
	Work Phase = iota
	ShortBreak
	LongBreak
)

func (p Phase) String() string {
	switch p {
	case Work:
		return "work"
	case ShortBreak:
		return "short_break"
	case LongBreak:
		return "long_break"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for _, p := range []Phase{Work, ShortBreak, LongBreak} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

type Settings struct {
	Work                    time.Duration `json:"work"`
	ShortBreak              time.Duration `json:"short_break"`
	LongBreak               time.Duration `json:"long_break"`
	SessionsBeforeLongBreak int           `json:"sessions_before_long_break"`
	AutoStartBreaks         bool          `json:"auto_start_breaks"`
	AutoStartPomodoros      bool          `json:"auto_start_pomodoros"`
}

func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default().Pomodoro)
}

func SettingsFromConfig(c config.PomodoroConfig) Settings {
	return Settings{
		Work:                    c.WorkDuration,
		ShortBreak:              c.ShortBreakDuration,
		LongBreak:               c.LongBreakDuration,
		SessionsBeforeLongBreak: c.SessionsBeforeLongBreak,
		AutoStartBreaks:         c.AutoStartBreaks,
		AutoStartPomodoros:      c.AutoStartPomodoros,
	}
}

func (s Settings) Validate() error {
	if s.Work <= 0 || s.ShortBreak <= 0 || s.LongBreak <= 0 {
		return fmt.Errorf("%w: phase durations must be positive", ErrInvalidSettings)
	}
	if s.SessionsBeforeLongBreak <= 0 {
		return fmt.Errorf("%w: sessions before long break must be positive", ErrInvalidSettings)
	}
	return nil
}

func (s Settings) durationFor(p Phase) time.Duration {
	switch p {
	case ShortBreak:
		return s.ShortBreak
	case LongBreak:
		return s.LongBreak
	}
	return s.Work
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Phase            Phase         `json:"phase"`
	Duration         time.Duration `json:"duration"`
	Remaining        time.Duration `json:"remaining"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Progress         float64       `json:"progress"`
	Running          bool          `json:"running"`
	Cycle            int           `json:"cycle"`
	CompletedWork    int           `json:"completed_work"`
	Hidden           bool          `json:"hidden"`
}

// PhaseChange is published on events.TopicPomodoroPhase.
type PhaseChange struct {
	From        Phase `json:"from"`
	To          Phase `json:"to"`
	Skipped     bool  `json:"skipped"`
	AutoStarted bool  `json:"auto_started"`
}

type Controller struct {
	mu        sync.Mutex
	settings  Settings
	phase     Phase
	cycle     int
	completed int
	engine    *timer.Engine
	closed    bool

	clock    timer.Clock
	sched    timer.Scheduler
	interval time.Duration
	vis      *timer.Signal
	bus      *events.Bus
	log      *slog.Logger
	onChange func(Snapshot)
}

type Option func(*Controller)

func WithClock(c timer.Clock) Option {
	return func(p *Controller) { p.clock = c }
}

func WithScheduler(s timer.Scheduler) Option {
	return func(p *Controller) { p.sched = s }
}

func WithTickInterval(d time.Duration) Option {
	return func(p *Controller) { p.interval = d }
}

func WithBus(b *events.Bus) Option {
	return func(p *Controller) { p.bus = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Controller) { p.log = l }
}

// OnChange registers a callback invoked with a fresh snapshot after every
// tick and control operation.
func OnChange(fn func(Snapshot)) Option {
	return func(p *Controller) { p.onChange = fn }
}

// New creates a controller sitting idle at the start of a work phase.
func New(s Settings, opts ...Option) (*Controller, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		settings: s,
		phase:    Work,
		clock:    timer.SystemClock{},
		sched:    timer.TickerScheduler{},
		interval: timer.DefaultTickInterval,
		vis:      timer.NewSignal(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	e, err := c.newEngineLocked(Work)
	if err != nil {
		return nil, err
	}
	c.engine = e
	return c, nil
}

func (c *Controller) newEngineLocked(p Phase) (*timer.Engine, error) {
	var e *timer.Engine
	e, err := timer.New(c.settings.durationFor(p),
		func(int, float64) { c.handleTick() },
		func() { c.advance(e, false) },
		timer.WithClock(c.clock),
		timer.WithScheduler(c.sched),
		timer.WithTickInterval(c.interval),
		timer.WithVisibility(c.vis),
	)
	if err != nil {
		return nil, fmt.Errorf("new %s phase: %w", p, err)
	}
	return e, nil
}

func (c *Controller) current() (*timer.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.engine, nil
}

func (c *Controller) Start() error {
	e, err := c.current()
	if err != nil {
		return err
	}
	e.Start()
	c.changed()
	return nil
}

func (c *Controller) Pause() error {
	e, err := c.current()
	if err != nil {
		return err
	}
	e.Pause()
	c.changed()
	return nil
}

// Toggle pauses a running phase and starts a paused or idle one.
func (c *Controller) Toggle() error {
	e, err := c.current()
	if err != nil {
		return err
	}
	if e.IsRunning() {
		e.Pause()
	} else {
		e.Start()
	}
	c.changed()
	return nil
}

// Reset returns to an idle work phase and clears the cycle counter.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.engine
	e, err := c.newEngineLocked(Work)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.engine = e
	c.phase = Work
	c.cycle = 0
	c.mu.Unlock()

	old.Stop()
	c.changed()
	return nil
}

// Skip ends the current phase now and moves to the next one as if it had
// completed.
func (c *Controller) Skip() error {
	e, err := c.current()
	if err != nil {
		return err
	}
	e.Stop()
	c.advance(e, true)
	return nil
}

// Adjust adds (positive) or removes (negative) time from the current phase,
// keeping the completed fraction.
func (c *Controller) Adjust(delta time.Duration) error {
	e, err := c.current()
	if err != nil {
		return err
	}
	d := e.Duration()
	if delta < 0 && d <= -delta+minAfterRemoval {
		return fmt.Errorf("%w: phase is %s, cannot remove %s", ErrAdjustTooLarge, d, -delta)
	}
	if err := e.SetDuration(d + delta); err != nil {
		return fmt.Errorf("adjust %s: %w", delta, err)
	}
	c.changed()
	return nil
}

// UpdateSettings applies new settings. The current phase is rescaled to its
// new length without losing progress.
func (c *Controller) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.settings = s
	e := c.engine
	target := s.durationFor(c.phase)
	c.mu.Unlock()

	if e.Duration() != target {
		if err := e.SetDuration(target); err != nil && !errors.Is(err, timer.ErrCompleted) {
			return fmt.Errorf("rescale current phase: %w", err)
		}
	}
	c.changed()
	return nil
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetHidden forwards a host visibility change observed at the given time.
// A zero time means now.
func (c *Controller) SetHidden(hidden bool, at time.Time) {
	if at.IsZero() {
		at = c.clock.Now()
	}
	c.vis.SetHidden(hidden, at)
	c.changed()
}

func (c *Controller) Hide() { c.SetHidden(true, time.Time{}) }
func (c *Controller) Show() { c.SetHidden(false, time.Time{}) }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	e := c.engine
	s := Snapshot{
		Phase:         c.phase,
		Cycle:         c.cycle,
		CompletedWork: c.completed,
	}
	c.mu.Unlock()

	rem := e.Remaining()
	s.Duration = e.Duration()
	s.Remaining = rem
	s.RemainingSeconds = e.RemainingSeconds()
	s.Progress = e.Progress()
	s.Running = e.IsRunning()
	s.Hidden = c.vis.Hidden()
	return s
}

// Close stops the current phase. The controller cannot be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	e := c.engine
	c.mu.Unlock()
	e.Stop()
}

func (c *Controller) advance(from *timer.Engine, skipped bool) {
	c.mu.Lock()
	if c.closed || c.engine != from {
		c.mu.Unlock()
		return
	}
	prev := c.phase
	next := Work
	if prev == Work {
		c.completed++
		c.cycle++
		if c.cycle >= c.settings.SessionsBeforeLongBreak {
			next = LongBreak
			c.cycle = 0
		} else {
			next = ShortBreak
		}
	}
	auto := c.settings.AutoStartBreaks
	if next == Work {
		auto = c.settings.AutoStartPomodoros
	}
	e, err := c.newEngineLocked(next)
	if err != nil {
		c.mu.Unlock()
		c.log.Error("pomodoro advance failed", "from", prev, "to", next, "error", err)
		return
	}
	c.engine = e
	c.phase = next
	c.mu.Unlock()

	c.log.Info("pomodoro phase changed", "from", prev, "to", next, "skipped", skipped, "auto_start", auto)
	c.bus.Publish(events.TopicPomodoroPhase, PhaseChange{From: prev, To: next, Skipped: skipped, AutoStarted: auto})
	if auto {
		e.Start()
	}
	c.changed()
}

func (c *Controller) handleTick() {
	c.changed()
}

func (c *Controller) changed() {
	if c.bus == nil && c.onChange == nil {
		return
	}
	snap := c.Snapshot()
	c.bus.Publish(events.TopicPomodoroTick, snap)
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// FormatClock renders whole seconds as MM:SS. Minutes are not wrapped at 60.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
