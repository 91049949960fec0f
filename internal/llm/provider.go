// Package llm talks to hosted completion APIs. Callers hand over prepared
// text and get plain text back; prompt wording lives with the callers.
package llm

import (
	"context"
	"fmt"

	"github.com/dgallion1/studykit/internal/config"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call. Nil sampling parameters use the
// provider default. Providers without penalty support ignore them.
type Request struct {
	System           string
	History          []Message
	User             string
	MaxTokens        int
	Temperature      *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	// JSON asks for a bare JSON object in the reply.
	JSON bool
}

// Provider completes a request.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Float returns a pointer to v for the optional Request fields.
func Float(v float64) *float64 { return &v }

const defaultMaxTokens = 1024

// Build creates the configured provider wrapped with latency stats, client
// side rate limiting and tracing.
func Build(cfg config.Config, stats *Stats) (Provider, error) {
	var p Provider
	switch cfg.LLMProvider {
	case "anthropic":
		p = NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "openai":
		p = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, WithBaseURL(cfg.OpenAIBaseURL))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	if stats != nil {
		p = WithStats(p, stats)
	}
	p = WithRateLimit(p, cfg.LLMRateLimit)
	return WithTracing(p), nil
}
