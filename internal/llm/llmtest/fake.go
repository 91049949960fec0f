// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/dgallion1/studykit/internal/llm"
)

// ErrNoResponse is returned when a Fake runs out of scripted responses.
var ErrNoResponse = errors.New("llmtest: no scripted response")

// Response is one scripted reply.
type Response struct {
	Text string
	Err  error
}

// Fake returns scripted responses in order and records every request.
// If Handler is set it is used instead of the script.
type Fake struct {
	Handler func(call int, req llm.Request) (string, error)

	mu        sync.Mutex
	responses []Response
	requests  []llm.Request
}

// New returns a Fake that replies with texts in order.
func New(texts ...string) *Fake {
	f := &Fake{}
	for _, t := range texts {
		f.responses = append(f.responses, Response{Text: t})
	}
	return f
}

// Push appends scripted responses.
func (f *Fake) Push(rs ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, rs...)
	return f
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	handler := f.Handler
	var r Response
	ok := call < len(f.responses)
	if ok {
		r = f.responses[call]
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if handler != nil {
		return handler(call, req)
	}
	if !ok {
		return "", ErrNoResponse
	}
	return r.Text, r.Err
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls returns how many requests were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
