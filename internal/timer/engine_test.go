package timer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	ticks     []int
	progress  []float64
	completed int
}

func (r *recorder) onTick(secs int, pct float64) {
	r.ticks = append(r.ticks, secs)
	r.progress = append(r.progress, pct)
}

func (r *recorder) onComplete() { r.completed++ }

func newTestEngine(t *testing.T, d time.Duration, opts ...Option) (*Engine, *ManualClock, *ManualScheduler, *recorder) {
	t.Helper()
	clock := NewManualClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	sched := NewManualScheduler()
	rec := &recorder{}
	opts = append([]Option{WithClock(clock), WithScheduler(sched)}, opts...)
	e, err := New(d, rec.onTick, rec.onComplete, opts...)
	require.NoError(t, err)
	return e, clock, sched, rec
}

func step(clock *ManualClock, sched *ManualScheduler, d time.Duration, n int) {
	for range n {
		clock.Advance(d)
		sched.Fire()
	}
}

func TestNew_RejectsNonPositiveDuration(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		e, err := New(d, nil, nil)
		assert.Nil(t, e)
		assert.True(t, errors.Is(err, ErrInvalidDuration))
	}
}

func TestEngine_PauseAdjustResume(t *testing.T) {
	e, clock, sched, rec := newTestEngine(t, 5*time.Second)

	e.Start()
	assert.True(t, e.IsRunning())
	step(clock, sched, time.Second, 2)
	assert.Equal(t, []int{4, 3}, rec.ticks)

	e.Pause()
	assert.Equal(t, Paused, e.State())
	assert.Equal(t, 3000*time.Millisecond, e.Remaining())

	require.NoError(t, e.SetDuration(10*time.Second))
	assert.Equal(t, 6000*time.Millisecond, e.Remaining())
	assert.Equal(t, 10*time.Second, e.Duration())
	assert.InDelta(t, 40.0, e.Progress(), 0.001)
	assert.Equal(t, Paused, e.State(), "adjusting while paused must not resume")

	e.Start()
	step(clock, sched, time.Second, 6)
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, time.Duration(0), e.Remaining())
	assert.Equal(t, Completed, e.State())

	step(clock, sched, time.Second, 3)
	assert.Equal(t, 1, rec.completed, "completion must fire exactly once")
	assert.Equal(t, 0, sched.Active())
}

func TestEngine_RescaleKeepsFractionWhileRunning(t *testing.T) {
	e, clock, sched, _ := newTestEngine(t, 60*time.Second)
	e.Start()
	clock.Advance(15 * time.Second)
	sched.Fire()

	require.NoError(t, e.SetDuration(120*time.Second))
	assert.True(t, e.IsRunning())
	assert.Equal(t, 90*time.Second, e.Remaining())
	assert.InDelta(t, 25.0, e.Progress(), 0.001)
	assert.Equal(t, 1, sched.Active())
}

func TestEngine_CountsWallClockNotTicks(t *testing.T) {
	e, clock, sched, rec := newTestEngine(t, 10*time.Second)
	e.Start()

	// Host froze: no ticks for 7 seconds.
	clock.Advance(7 * time.Second)
	sched.Fire()
	assert.Equal(t, []int{3}, rec.ticks)
	assert.Equal(t, 3*time.Second, e.Remaining())

	clock.Advance(4 * time.Second)
	sched.Fire()
	assert.Equal(t, 1, rec.completed)
}

func TestEngine_CompletesOnceAtAnyTickGranularity(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		wantStep int
	}{
		{"1ms", time.Millisecond, 3000},
		{"999ms", 999 * time.Millisecond, 4},
		{"1s", time.Second, 3},
		{"2500ms", 2500 * time.Millisecond, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, clock, sched, rec := newTestEngine(t, 3*time.Second)
			e.Start()
			doneAt := 0
			for i := 1; i <= tc.wantStep+50; i++ {
				clock.Advance(tc.interval)
				sched.Fire()
				if rec.completed == 1 && doneAt == 0 {
					doneAt = i
				}
			}
			assert.Equal(t, 1, rec.completed)
			assert.Equal(t, tc.wantStep, doneAt)
			for i := 1; i < len(rec.ticks); i++ {
				assert.LessOrEqual(t, rec.ticks[i], rec.ticks[i-1], "remaining seconds must not increase")
			}
		})
	}
}

func TestEngine_HiddenIntervalIsCharged(t *testing.T) {
	sig := NewSignal()
	e, clock, sched, rec := newTestEngine(t, 10*time.Second, WithVisibility(sig))
	e.Start()
	step(clock, sched, time.Second, 2)

	sig.SetHidden(true, clock.Now())
	assert.Equal(t, Paused, e.State())
	assert.Equal(t, 0, sched.Active())

	clock.Advance(5 * time.Second)
	sig.SetHidden(false, clock.Now())
	assert.True(t, e.IsRunning())
	assert.Equal(t, 3*time.Second, e.Remaining())
	assert.Equal(t, 3, rec.ticks[len(rec.ticks)-1])

	step(clock, sched, time.Second, 3)
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, 0, sig.Subscribers(), "completion detaches the listener")
}

func TestEngine_VisibilityTimestampsAheadOfClock(t *testing.T) {
	sig := NewSignal()
	e, clock, sched, _ := newTestEngine(t, time.Hour, WithVisibility(sig))
	e.Start()
	step(clock, sched, time.Second, 10)

	future := clock.Now().Add(5 * time.Minute)
	sig.SetHidden(true, future)
	sig.SetHidden(false, future)

	assert.True(t, e.IsRunning())
	assert.Equal(t, 59*time.Minute+50*time.Second, e.Remaining())
}

func TestEngine_HideStampedBeforeLastTickIsNotChargedTwice(t *testing.T) {
	sig := NewSignal()
	e, clock, sched, _ := newTestEngine(t, time.Hour, WithVisibility(sig))
	e.Start()
	step(clock, sched, time.Second, 10)

	sig.SetHidden(true, clock.Now().Add(-10*time.Second))
	sig.SetHidden(false, clock.Now())
	assert.Equal(t, 59*time.Minute+50*time.Second, e.Remaining())

	sig.SetHidden(true, clock.Now())
	clock.Advance(30 * time.Second)
	sig.SetHidden(false, clock.Now().Add(-time.Hour))
	assert.True(t, e.IsRunning())
	assert.Equal(t, 59*time.Minute+20*time.Second, e.Remaining(), "a show stamped before the hide charges the interval once")
}

func TestEngine_HiddenPastEndCompletesOnShow(t *testing.T) {
	sig := NewSignal()
	e, clock, _, rec := newTestEngine(t, 5*time.Second, WithVisibility(sig))
	e.Start()

	sig.SetHidden(true, clock.Now())
	clock.Advance(time.Minute)
	sig.SetHidden(false, clock.Now())

	assert.Equal(t, Completed, e.State())
	assert.Equal(t, 1, rec.completed)
}

func TestEngine_HiddenWhilePausedStaysPaused(t *testing.T) {
	sig := NewSignal()
	e, clock, _, _ := newTestEngine(t, 5*time.Second, WithVisibility(sig))
	e.Start()
	clock.Advance(time.Second)
	e.Pause()

	sig.SetHidden(true, clock.Now())
	clock.Advance(10 * time.Second)
	sig.SetHidden(false, clock.Now())

	assert.Equal(t, Paused, e.State())
	assert.Equal(t, 4*time.Second, e.Remaining())
}

func TestEngine_StartWhileHiddenDoesNotDoubleCount(t *testing.T) {
	sig := NewSignal()
	e, clock, sched, _ := newTestEngine(t, 10*time.Second, WithVisibility(sig))
	e.Start()

	sig.SetHidden(true, clock.Now())
	clock.Advance(2 * time.Second)
	e.Start()
	assert.Equal(t, 8*time.Second, e.Remaining())

	clock.Advance(time.Second)
	sig.SetHidden(false, clock.Now())
	assert.Equal(t, 7*time.Second, e.Remaining())
	assert.Equal(t, 1, sched.Active())
}

func TestEngine_StopSilencesCallbacks(t *testing.T) {
	sig := NewSignal()
	e, clock, sched, rec := newTestEngine(t, 3*time.Second, WithVisibility(sig))
	e.Start()
	clock.Advance(time.Second)
	e.Stop()

	assert.Equal(t, Stopped, e.State())
	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, 0, sig.Subscribers())

	step(clock, sched, time.Second, 5)
	sig.SetHidden(true, clock.Now())
	assert.Empty(t, rec.ticks)
	assert.Equal(t, 0, rec.completed)

	assert.ErrorIs(t, e.SetDuration(time.Minute), ErrStopped)
	e.Start()
	assert.Equal(t, Stopped, e.State())
}

func TestEngine_SetDurationValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t, 5*time.Second)
	assert.ErrorIs(t, e.SetDuration(0), ErrInvalidDuration)
	assert.Equal(t, 5*time.Second, e.Duration())

	e, clock, sched, _ := newTestEngine(t, time.Second)
	e.Start()
	step(clock, sched, time.Second, 1)
	assert.ErrorIs(t, e.SetDuration(time.Minute), ErrCompleted)
}

func TestEngine_StartIsIdempotent(t *testing.T) {
	e, _, sched, _ := newTestEngine(t, 5*time.Second)
	e.Start()
	e.Start()
	assert.Equal(t, 1, sched.Active())
}

func TestEngine_CompleteCallbackCanReadState(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	sched := NewManualScheduler()
	var seen State
	var e *Engine
	e, err := New(time.Second, nil, func() { seen = e.State() }, WithClock(clock), WithScheduler(sched))
	require.NoError(t, err)
	e.Start()
	clock.Advance(time.Second)
	sched.Fire()
	assert.Equal(t, Completed, seen)
}

func TestSignal_EmitsOnlyOnTransitions(t *testing.T) {
	sig := NewSignal()
	var events []VisibilityEvent
	unsub := sig.Subscribe(func(ev VisibilityEvent) { events = append(events, ev) })

	now := time.Unix(100, 0)
	assert.False(t, sig.SetHidden(false, now))
	assert.True(t, sig.SetHidden(true, now))
	assert.False(t, sig.SetHidden(true, now))
	assert.True(t, sig.SetHidden(false, now.Add(time.Second)))
	require.Len(t, events, 2)
	assert.True(t, events[0].Hidden)
	assert.Equal(t, now.Add(time.Second), events[1].At)

	unsub()
	sig.SetHidden(true, now)
	assert.Len(t, events, 2)
}
