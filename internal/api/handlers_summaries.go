package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/studykit/internal/pipeline"
	"github.com/dgallion1/studykit/internal/summarize"
)

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var opts summarize.Options
	if err := decodeJSON(w, r, &opts); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := opts.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	job, err := s.deps.Orchestrator.Submit(r.Context(), doc, opts)
	if errors.Is(err, pipeline.ErrQueueFull) {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap := job.Snapshot()
	code := http.StatusAccepted
	if snap.Status.Done() {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"job_id":   snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"cached":   snap.Cached,
		"poll_url": fmt.Sprintf("/api/jobs/%s", snap.ID),
	})
}

// handleJobStatus reports progress, and the summary once complete. With
// ?render=html the summary markdown is rendered to HTML.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.deps.Orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	resp := map[string]any{"job": snap}
	if r.URL.Query().Get("render") == "html" && snap.Result != "" {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(snap.Result), &buf); err != nil {
			jsonError(w, "render summary: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp["html"] = buf.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
