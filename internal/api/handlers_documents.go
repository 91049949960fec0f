package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/parser"
	"github.com/dgallion1/studykit/internal/store"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	p, err := parser.ForFile(filename, parser.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		s.log.Warn("parse failed", "filename", filename, "error", err)
		jsonError(w, "could not extract text: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if doc.IsEmpty() {
		jsonError(w, "no text could be extracted from the file", http.StatusUnprocessableEntity)
		return
	}
	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		doc.Title = title
	}

	ctx := r.Context()
	if r.FormValue("force") != "true" {
		existing, err := s.deps.Store.FindByHash(ctx, doc.ContentHash())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"document": existing, "duplicate": true})
			return
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn("duplicate lookup failed", "error", err)
		}
	}

	doc.ID = uuid.NewString()
	meta, err := s.deps.Store.PutDocument(ctx, doc)
	if err != nil {
		jsonError(w, "failed to store document", http.StatusInternalServerError)
		return
	}
	s.log.Info("document stored", "doc_id", meta.ID, "filename", filename, "pages", meta.Pages, "words", meta.Words)
	writeJSON(w, http.StatusCreated, map[string]any{"document": meta, "duplicate": false})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	docs, err := s.deps.Store.ListDocuments(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           doc.ID,
		"title":        doc.Title,
		"filename":     doc.Filename,
		"words":        doc.WordCount(),
		"content_hash": doc.ContentHash(),
		"pages":        doc.Pages,
	})
}

// handleDeleteDocument removes a document and ends its chat sessions.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	err := s.deps.Store.DeleteDocument(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	closed := s.deps.Chats.DropDocument(docID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID, "sessions_closed": closed})
}

// loadDocument fetches the {docID} document, writing the error response
// itself when it cannot.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*document.Document, bool) {
	doc, err := s.deps.Store.GetDocument(r.Context(), chi.URLParam(r, "docID"))
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		jsonError(w, "failed to load document: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return doc, true
}
