package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/studykit/internal/chat"
)

type chatRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Settings  *chat.Settings `json:"settings"`
}

// handleChat sends a message in an existing session, or opens a new one
// when session_id is empty.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	docID := chi.URLParam(r, "docID")

	var sess *chat.Session
	if req.SessionID != "" {
		found, ok := s.deps.Chats.Get(req.SessionID)
		if !ok || found.DocumentID != docID {
			jsonError(w, "chat session not found", http.StatusNotFound)
			return
		}
		sess = found
	} else {
		doc, ok := s.loadDocument(w, r)
		if !ok {
			return
		}
		sess = s.deps.Chats.Open(doc)
	}

	settings := chat.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	reply, err := sess.Send(r.Context(), req.Message, settings)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		jsonError(w, "message is required", http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error("chat failed", "session_id", sess.ID, "doc_id", docID, "error", err)
		jsonError(w, "chat failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	refs := reply.PageReferences
	if refs == nil {
		refs = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      sess.ID,
		"reply":           reply.Content,
		"page_references": refs,
		"timestamp":       reply.Timestamp,
	})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Chats.Delete(chi.URLParam(r, "sessionID")) {
		jsonError(w, "chat session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
