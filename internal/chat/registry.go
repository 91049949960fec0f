package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/llm"
)

// Registry holds live sessions and evicts idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	provider llm.Provider
	ttl      time.Duration
}

func NewRegistry(p llm.Provider, ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		provider: p,
		ttl:      ttl,
	}
}

// Open starts a session for doc under a fresh ID.
func (r *Registry) Open(doc *document.Document) *Session {
	s := NewSession(uuid.NewString(), doc, r.provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session. It reports whether one existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// DropDocument removes every session bound to docID.
func (r *Registry) DropDocument(docID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.DocumentID == docID {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Cleanup removes sessions idle longer than the TTL.
func (r *Registry) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.ttl {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
