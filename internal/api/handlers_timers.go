package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/studykit/internal/pomodoro"
	"github.com/dgallion1/studykit/internal/timer"
)

// maxTimers bounds the number of live timers.
const maxTimers = 1024

var errTooManyTimers = errors.New("too many timers")

type timerEntry struct {
	c          *pomodoro.Controller
	lastAccess time.Time
}

// timerRegistry holds the pomodoro timers created over the API and evicts
// the ones nobody has touched within the TTL.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*timerEntry
	ttl    time.Duration
}

func newTimerRegistry(ttl time.Duration) *timerRegistry {
	return &timerRegistry{timers: make(map[string]*timerEntry), ttl: ttl}
}

func (t *timerRegistry) add(c *pomodoro.Controller) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.timers) >= maxTimers {
		return "", errTooManyTimers
	}
	id := uuid.NewString()
	t.timers[id] = &timerEntry{c: c, lastAccess: time.Now()}
	return id, nil
}

// get returns the timer and marks it as used.
func (t *timerRegistry) get(id string) (*pomodoro.Controller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.timers[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.c, true
}

func (t *timerRegistry) remove(id string) (*pomodoro.Controller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.timers[id]
	if !ok {
		return nil, false
	}
	delete(t.timers, id)
	return e.c, true
}

func (t *timerRegistry) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// cleanup closes and removes timers idle longer than the TTL.
func (t *timerRegistry) cleanup(now time.Time) int {
	t.mu.Lock()
	var expired []*pomodoro.Controller
	for id, e := range t.timers {
		if now.Sub(e.lastAccess) > t.ttl {
			expired = append(expired, e.c)
			delete(t.timers, id)
		}
	}
	t.mu.Unlock()
	for _, c := range expired {
		c.Close()
	}
	return len(expired)
}

func (t *timerRegistry) closeAll() {
	t.mu.Lock()
	all := t.timers
	t.timers = make(map[string]*timerEntry)
	t.mu.Unlock()
	for _, e := range all {
		e.c.Close()
	}
}

// timerSettings overrides the configured cycle. Durations use Go syntax
// ("25m", "90s"); omitted fields keep their base value.
type timerSettings struct {
	Work                    string `json:"work"`
	ShortBreak              string `json:"short_break"`
	LongBreak               string `json:"long_break"`
	SessionsBeforeLongBreak int    `json:"sessions_before_long_break"`
	AutoStartBreaks         *bool  `json:"auto_start_breaks"`
	AutoStartPomodoros      *bool  `json:"auto_start_pomodoros"`
}

func (ts timerSettings) apply(base pomodoro.Settings) (pomodoro.Settings, error) {
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"work", ts.Work, &base.Work},
		{"short_break", ts.ShortBreak, &base.ShortBreak},
		{"long_break", ts.LongBreak, &base.LongBreak},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return base, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	if ts.SessionsBeforeLongBreak != 0 {
		base.SessionsBeforeLongBreak = ts.SessionsBeforeLongBreak
	}
	if ts.AutoStartBreaks != nil {
		base.AutoStartBreaks = *ts.AutoStartBreaks
	}
	if ts.AutoStartPomodoros != nil {
		base.AutoStartPomodoros = *ts.AutoStartPomodoros
	}
	return base, base.Validate()
}

type timerView struct {
	ID       string            `json:"timer_id"`
	Clock    string            `json:"clock"`
	State    pomodoro.Snapshot `json:"state"`
	Settings pomodoro.Settings `json:"settings"`
}

func viewTimer(id string, c *pomodoro.Controller) timerView {
	snap := c.Snapshot()
	return timerView{
		ID:       id,
		Clock:    pomodoro.FormatClock(snap.RemainingSeconds),
		State:    snap,
		Settings: c.Settings(),
	}
}

func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req timerSettings
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	settings, err := req.apply(pomodoro.SettingsFromConfig(s.cfg.Pomodoro))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := pomodoro.New(settings, pomodoro.WithBus(s.deps.Bus), pomodoro.WithLogger(s.log))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := s.timers.add(c)
	if err != nil {
		c.Close()
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Info("timer created", "timer_id", id, "work", settings.Work)
	writeJSON(w, http.StatusCreated, viewTimer(id, c))
}

// timer looks up the {timerID} controller, writing a 404 when it is missing.
func (s *Server) timer(w http.ResponseWriter, r *http.Request) (string, *pomodoro.Controller, bool) {
	id := chi.URLParam(r, "timerID")
	c, ok := s.timers.get(id)
	if !ok {
		jsonError(w, "timer not found", http.StatusNotFound)
		return "", nil, false
	}
	return id, c, true
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.timer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewTimer(id, c))
}

func (s *Server) handleTimerAction(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.timer(w, r)
	if !ok {
		return
	}
	var err error
	switch action := chi.URLParam(r, "action"); action {
	case "start":
		err = c.Start()
	case "pause":
		err = c.Pause()
	case "toggle":
		err = c.Toggle()
	case "reset":
		err = c.Reset()
	case "skip":
		err = c.Skip()
	case "settings":
		var req timerSettings
		if err := decodeJSON(w, r, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings, err := req.apply(c.Settings())
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.UpdateSettings(settings)
		if err != nil {
			s.timerError(w, err)
			return
		}
	default:
		jsonError(w, fmt.Sprintf("unknown timer action %q", action), http.StatusNotFound)
		return
	}
	if err != nil {
		s.timerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTimer(id, c))
}

// maxAdjustSeconds bounds one adjustment to a day.
const maxAdjustSeconds = 24 * 60 * 60

type adjustRequest struct {
	Seconds int `json:"seconds"`
}

// handleAdjustTimer adds time to the current phase, or removes it when
// seconds is negative.
func (s *Server) handleAdjustTimer(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.timer(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Seconds == 0 {
		jsonError(w, "seconds must be non-zero", http.StatusBadRequest)
		return
	}
	if req.Seconds > maxAdjustSeconds || req.Seconds < -maxAdjustSeconds {
		jsonError(w, fmt.Sprintf("seconds must be within ±%d", maxAdjustSeconds), http.StatusUnprocessableEntity)
		return
	}
	if err := c.Adjust(time.Duration(req.Seconds) * time.Second); err != nil {
		s.timerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTimer(id, c))
}

type visibilityRequest struct {
	Hidden bool      `json:"hidden"`
	At     time.Time `json:"at"`
}

// handleTimerVisibility records a client-reported hide or show. The client's
// timestamp is used when given so time spent hidden is charged accurately.
func (s *Server) handleTimerVisibility(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.timer(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.SetHidden(req.Hidden, req.At)
	writeJSON(w, http.StatusOK, viewTimer(id, c))
}

func (s *Server) handleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	c, ok := s.timers.remove(chi.URLParam(r, "timerID"))
	if !ok {
		jsonError(w, "timer not found", http.StatusNotFound)
		return
	}
	c.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) timerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pomodoro.ErrAdjustTooLarge), errors.Is(err, pomodoro.ErrInvalidSettings),
		errors.Is(err, timer.ErrInvalidDuration):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, timer.ErrCompleted):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pomodoro.ErrClosed):
		jsonError(w, err.Error(), http.StatusGone)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
