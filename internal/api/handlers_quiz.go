package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/studykit/internal/quiz"
)

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var opts quiz.Options
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

	questions, err := s.deps.Quiz.Generate(r.Context(), doc.FullText(), opts)
	switch {
	case errors.Is(err, quiz.ErrNoContent):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, quiz.ErrInvalidQuestion):
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		s.log.Error("quiz failed", "doc_id", doc.ID, "error", err)
		jsonError(w, "quiz generation failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": doc.ID, "questions": questions})
}
