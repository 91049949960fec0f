package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/studykit/internal/chat"
	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/llm/llmtest"
	"github.com/dgallion1/studykit/internal/pipeline"
	"github.com/dgallion1/studykit/internal/quiz"
	"github.com/dgallion1/studykit/internal/store"
	"github.com/dgallion1/studykit/internal/summarize"
	"github.com/dgallion1/studykit/internal/timer"
)

const testKey = "test-key"

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, p llm.Provider) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.WorkerCount = 1
	cfg.LLMMaxRetries = 1

	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.New()
	stats := llm.NewStats(time.Hour)
	p = llm.WithStats(p, stats)
	orch := pipeline.NewOrchestrator(cfg, summarize.New(p, summarize.WithLogger(quietLog)), st, bus, quietLog)
	orch.Start(ctx)
	t.Cleanup(orch.Stop)

	srv := NewServer(Deps{
		Store:        st,
		Orchestrator: orch,
		Chats:        chat.NewRegistry(p, time.Hour),
		Quiz:         quiz.New(p, quiz.WithLogger(quietLog)),
		Stats:        stats,
		ProviderName: p.Name(),
		Bus:          bus,
	}, quietLog, cfg)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, srv *Server, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type uploadResponse struct {
	Document  store.DocumentMeta `json:"document"`
	Duplicate bool               `json:"duplicate"`
}

const biology = "Cells are the basic unit of life.\n\fMitochondria produce energy for the cell.\n\fPhotosynthesis happens in chloroplasts."

func uploadBiology(t *testing.T, srv *Server) store.DocumentMeta {
	t.Helper()
	rec := upload(t, srv, "biology.txt", biology)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[uploadResponse](t, rec).Document
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	for _, header := range []string{"", "Bearer wrong", "Basic " + testKey} {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	meta := uploadBiology(t, srv)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "biology", meta.Title)
	assert.Equal(t, 3, meta.Pages)

	again := upload(t, srv, "copy.txt", biology)
	require.Equal(t, http.StatusOK, again.Code)
	dup := decode[uploadResponse](t, again)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, meta.ID, dup.Document.ID)

	list := decode[struct {
		Documents []store.DocumentMeta `json:"documents"`
	}](t, do(t, srv, http.MethodGet, "/api/documents", nil))
	require.Len(t, list.Documents, 1)

	got := do(t, srv, http.MethodGet, "/api/documents/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), "Mitochondria produce energy")

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/documents/"+meta.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/documents/"+meta.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/documents/"+meta.ID, nil).Code)
}

func TestUploadRejectsBadFiles(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	assert.Equal(t, http.StatusBadRequest, upload(t, srv, "slides.pptx", "whatever").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, upload(t, srv, "blank.txt", "\n\n  \n").Code)
}

type jobResponse struct {
	Job  pipeline.JobSnapshot `json:"job"`
	HTML string               `json:"html"`
}

func TestSummaryJobCompletesAndIsCached(t *testing.T) {
	fake := llmtest.New("**Cells** make energy.")
	srv := newTestServer(t, fake)
	meta := uploadBiology(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/summaries", map[string]any{"format": "bullets"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decode[map[string]any](t, rec)["job_id"].(string)

	var job jobResponse
	require.Eventually(t, func() bool {
		job = decode[jobResponse](t, do(t, srv, http.MethodGet, "/api/jobs/"+jobID+"?render=html", nil))
		return job.Job.Status.Done()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, pipeline.StatusCompleted, job.Job.Status)
	assert.Equal(t, "**Cells** make energy.", job.Job.Result)
	assert.Contains(t, job.HTML, "<strong>Cells</strong>")

	cached := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/summaries", map[string]any{"format": "bullets"})
	require.Equal(t, http.StatusOK, cached.Code)
	assert.Equal(t, true, decode[map[string]any](t, cached)["cached"])
	assert.Equal(t, 1, fake.Calls())
}

func TestSummaryRejectsBadOptions(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	meta := uploadBiology(t, srv)
	rec := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/summaries", map[string]any{"format": "haiku"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/documents/missing/summaries", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/jobs/nope", nil).Code)
}

func TestChatSession(t *testing.T) {
	fake := llmtest.New("They produce energy.", "In chloroplasts.")
	srv := newTestServer(t, fake)
	meta := uploadBiology(t, srv)
	path := "/api/documents/" + meta.ID + "/chat"

	type chatResponse struct {
		SessionID      string `json:"session_id"`
		Reply          string `json:"reply"`
		PageReferences []int  `json:"page_references"`
	}
	first := do(t, srv, http.MethodPost, path, map[string]any{"message": "What do mitochondria produce?"})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	r1 := decode[chatResponse](t, first)
	assert.NotEmpty(t, r1.SessionID)
	assert.Equal(t, "They produce energy.", r1.Reply)
	assert.Equal(t, []int{2}, r1.PageReferences)

	second := do(t, srv, http.MethodPost, path, map[string]any{"session_id": r1.SessionID, "message": "Where does photosynthesis happen?"})
	require.Equal(t, http.StatusOK, second.Code)
	r2 := decode[chatResponse](t, second)
	assert.Equal(t, r1.SessionID, r2.SessionID)
	assert.Len(t, fake.Requests()[1].History, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, path, map[string]any{"session_id": r1.SessionID, "message": "  "}).Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/chat/"+r1.SessionID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, path, map[string]any{"session_id": r1.SessionID, "message": "hi"}).Code)
}

func TestQuiz(t *testing.T) {
	fake := llmtest.New(`{"questions": [{"question": "What makes energy?", "options": ["Mitochondria", "Ribosomes"], "correctAnswer": "Mitochondria", "explanation": "Page 2."}]}`)
	srv := newTestServer(t, fake)
	meta := uploadBiology(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/quiz", map[string]any{"number_of_questions": 1, "difficulty": "easy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Questions []quiz.Question `json:"questions"`
	}](t, rec)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "Mitochondria", resp.Questions[0].CorrectAnswer)
	assert.True(t, fake.Requests()[0].JSON)

	bad := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/quiz", map[string]any{"difficulty": "impossible"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestQuizRejectsMalformedReply(t *testing.T) {
	srv := newTestServer(t, llmtest.New(`{"questions": [{"question": "Broken question?", "options": "A", "correctAnswer": "A"}]}`))
	meta := uploadBiology(t, srv)
	rec := do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/quiz", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTimerControls(t *testing.T) {
	srv := newTestServer(t, llmtest.New())

	created := do(t, srv, http.MethodPost, "/api/timers", map[string]any{"work": "10m", "auto_start_pomodoros": false})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	view := decode[timerView](t, created)
	assert.Equal(t, "10:00", view.Clock)
	assert.Equal(t, 10*time.Minute, view.Settings.Work)
	assert.False(t, view.State.Running)
	base := "/api/timers/" + view.ID

	started := decode[timerView](t, do(t, srv, http.MethodPost, base+"/start", nil))
	assert.True(t, started.State.Running)
	paused := decode[timerView](t, do(t, srv, http.MethodPost, base+"/pause", nil))
	assert.False(t, paused.State.Running)

	added := decode[timerView](t, do(t, srv, http.MethodPost, base+"/adjust", map[string]any{"seconds": 300}))
	assert.Equal(t, 15*time.Minute, added.State.Duration)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPost, base+"/adjust", map[string]any{"seconds": -3600}).Code)

	hidden := decode[timerView](t, do(t, srv, http.MethodPost, base+"/visibility", map[string]any{"hidden": true}))
	assert.True(t, hidden.State.Hidden)

	skipped := decode[timerView](t, do(t, srv, http.MethodPost, base+"/skip", nil))
	assert.Equal(t, "short_break", skipped.State.Phase.String())
	assert.Equal(t, 1, skipped.State.CompletedWork)

	reset := decode[timerView](t, do(t, srv, http.MethodPost, base+"/reset", nil))
	assert.Equal(t, "work", reset.State.Phase.String())
	assert.Equal(t, 0, reset.State.Cycle)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, base+"/explode", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, base, nil).Code)
}

func TestTimerRejectsBadSettings(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/timers", map[string]any{"work": "soon"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/timers", map[string]any{"work": "-5m"}).Code)
}

func TestTimerAdjustBounds(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	view := decode[timerView](t, do(t, srv, http.MethodPost, "/api/timers", map[string]any{"work": "25m"}))
	base := "/api/timers/" + view.ID

	for _, secs := range []int64{86401, -86401, 1 << 62} {
		rec := do(t, srv, http.MethodPost, base+"/adjust", map[string]any{"seconds": secs})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "seconds=%d", secs)
	}
	got := decode[timerView](t, do(t, srv, http.MethodGet, base, nil))
	assert.Equal(t, 25*time.Minute, got.State.Duration)
}

func TestTimerErrorStatus(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	for err, want := range map[error]int{
		fmt.Errorf("adjust: %w", timer.ErrInvalidDuration): http.StatusUnprocessableEntity,
		fmt.Errorf("adjust: %w", timer.ErrCompleted):       http.StatusConflict,
	} {
		rec := httptest.NewRecorder()
		srv.timerError(rec, err)
		assert.Equal(t, want, rec.Code, err.Error())
	}
}

func TestTimerVisibilityIgnoresClientClockSkew(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	view := decode[timerView](t, do(t, srv, http.MethodPost, "/api/timers", map[string]any{"work": "10m"}))
	base := "/api/timers/" + view.ID
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/start", nil).Code)

	ahead := time.Now().Add(time.Hour)
	do(t, srv, http.MethodPost, base+"/visibility", map[string]any{"hidden": true, "at": ahead})
	shown := decode[timerView](t, do(t, srv, http.MethodPost, base+"/visibility", map[string]any{"hidden": false, "at": ahead}))

	assert.Equal(t, "work", shown.State.Phase.String())
	assert.True(t, shown.State.Running)
	assert.Greater(t, shown.State.RemainingSeconds, 9*60)
}

func TestTimerExpiry(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	view := decode[timerView](t, do(t, srv, http.MethodPost, "/api/timers", nil))
	base := "/api/timers/" + view.ID

	assert.Zero(t, srv.CleanupTimers(time.Now()))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, base, nil).Code)

	assert.Equal(t, 1, srv.CleanupTimers(time.Now().Add(srv.cfg.SessionTTL+time.Minute)))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, base, nil).Code)
	assert.Zero(t, srv.timers.len())
}

func TestTimerRegistryCap(t *testing.T) {
	r := newTimerRegistry(time.Hour)
	for i := range maxTimers {
		r.timers[fmt.Sprint(i)] = &timerEntry{lastAccess: time.Now()}
	}
	_, err := r.add(nil)
	assert.ErrorIs(t, err, errTooManyTimers)
}

func TestLLMStats(t *testing.T) {
	srv := newTestServer(t, llmtest.New("answer"))
	meta := uploadBiology(t, srv)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/documents/"+meta.ID+"/chat", map[string]any{"message": "cells?"}).Code)

	rec := do(t, srv, http.MethodGet, "/api/stats/llm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Provider string            `json:"provider"`
		Stats    llm.StatsSnapshot `json:"stats"`
	}](t, rec)
	assert.Equal(t, "fake", resp.Provider)
	assert.Equal(t, 1, resp.Stats.Count)
}

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"notes.txt":             "notes.txt",
		"../../etc/passwd.txt":  "passwd.txt",
		`C:\Users\me\paper.pdf`: "paper.pdf",
		"":                      "unnamed",
		"a..b.md":               "a_b.md",
	} {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
	assert.False(t, strings.Contains(sanitizeFilename("x/../y.txt"), "/"))
}
