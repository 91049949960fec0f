// Package chat answers questions about one document, keeping a short
// conversation history and citing the pages most relevant to each question.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/relevance"
)

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrEmptyReply   = errors.New("chat: provider returned an empty reply")
)

const (
	contextChars     = 2000
	historyWindow    = 5
	presencePenalty  = 0.6
	frequencyPenalty = 0.3
)

type ResponseLength string

const (
	Concise  ResponseLength = "concise"
	Balanced ResponseLength = "balanced"
	Detailed ResponseLength = "detailed"
)

type Tone string

const (
	Technical Tone = "technical"
	Simple    Tone = "simple"
)

type Format string

const (
	Structured     Format = "structured"
	Conversational Format = "conversational"
)

// Settings shape the assistant's replies.
type Settings struct {
	ResponseLength  ResponseLength `json:"response_length,omitempty"`
	Tone            Tone           `json:"tone,omitempty"`
	Format          Format         `json:"format,omitempty"`
	IncludePageRefs bool           `json:"include_page_refs"`
}

func DefaultSettings() Settings {
	return Settings{
		ResponseLength:  Balanced,
		Tone:            Simple,
		Format:          Conversational,
		IncludePageRefs: true,
	}
}

func (s Settings) maxTokens() int {
	switch s.ResponseLength {
	case Concise:
		return 150
	case Detailed:
		return 500
	}
	return 300
}

func (s Settings) temperature() float64 {
	if s.Tone == Technical {
		return 0.3
	}
	return 0.6
}

// Message is one turn. Assistant turns carry the pages the question matched.
type Message struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	PageReferences []int     `json:"page_references,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Session is a conversation about one document.
type Session struct {
	ID         string
	DocumentID string

	provider llm.Provider
	index    *relevance.Index
	excerpt  string
	now      func() time.Time

	// sendMu serializes Send so history stays in turn order.
	sendMu sync.Mutex

	mu       sync.Mutex
	history  []Message
	lastUsed time.Time
}

// NewSession indexes doc once; every Send reuses the index.
func NewSession(id string, doc *document.Document, p llm.Provider) *Session {
	return &Session{
		ID:         id,
		DocumentID: doc.ID,
		provider:   p,
		index:      relevance.FromDocument(doc),
		excerpt:    firstRunes(doc.FullText(), contextChars),
		now:        time.Now,
		lastUsed:   time.Now(),
	}
}

// Send asks a question. History is extended only when the provider replies.
func (s *Session) Send(ctx context.Context, message string, settings Settings) (Message, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Message{}, ErrEmptyMessage
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	pages := s.index.Query(message)

	s.mu.Lock()
	prior := s.history[max(0, len(s.history)-historyWindow):]
	history := make([]llm.Message, 0, len(prior))
	for _, m := range prior {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	s.mu.Unlock()

	reply, err := s.provider.Complete(ctx, llm.Request{
		System:           SystemPrompt(settings, s.excerpt),
		History:          history,
		User:             message,
		MaxTokens:        settings.maxTokens(),
		Temperature:      llm.Float(settings.temperature()),
		PresencePenalty:  llm.Float(presencePenalty),
		FrequencyPenalty: llm.Float(frequencyPenalty),
	})
	if err != nil {
		return Message{}, fmt.Errorf("chat: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return Message{}, ErrEmptyReply
	}

	now := s.now()
	answer := Message{
		Role:           llm.RoleAssistant,
		Content:        reply,
		PageReferences: pages,
		Timestamp:      now,
	}
	s.mu.Lock()
	s.history = append(s.history,
		Message{Role: llm.RoleUser, Content: message, Timestamp: now},
		answer,
	)
	s.lastUsed = now
	s.mu.Unlock()
	return answer, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.lastUsed = s.now()
}

// RelevantPages ranks the document's pages for a query without asking the
// provider.
func (s *Session) RelevantPages(query string) []int {
	return s.index.Query(query)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SystemPrompt builds the assistant instructions followed by the document
// excerpt.
func SystemPrompt(settings Settings, excerpt string) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful AI assistant specializing in analyzing documents.\n")
	sb.WriteString("You excel at providing clear, accurate, and contextually relevant responses.\n\n")
	if settings.Tone == Technical {
		sb.WriteString("Use technical and precise language.\n")
	} else {
		sb.WriteString("Use clear and simple language.\n")
	}
	if settings.Format == Structured {
		sb.WriteString("Structure your responses with clear sections and bullet points.\n")
	} else {
		sb.WriteString("Maintain a conversational tone.\n")
	}
	if settings.IncludePageRefs {
		sb.WriteString("Include page references in [Page X] format when citing specific information.\n")
	}
	sb.WriteString(`
Guidelines for your responses:
1. Use markdown formatting for emphasis (**bold** for important terms, *italic* for definitions)
2. Break down complex information into digestible parts
3. Provide examples when helpful
4. Acknowledge uncertainty when appropriate
5. Maintain coherence with previous conversation context

Use this document context to inform your responses:
`)
	sb.WriteString(excerpt)
	return sb.String()
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
