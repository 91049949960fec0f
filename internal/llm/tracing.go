package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dgallion1/studykit/internal/llm"

var (
	attrProvider      = attribute.Key("llm.provider")
	attrMaxTokens     = attribute.Key("llm.max_tokens")
	attrHistory       = attribute.Key("llm.history_messages")
	attrJSON          = attribute.Key("llm.json")
	attrPromptChars   = attribute.Key("llm.prompt_chars")
	attrResponseChars = attribute.Key("llm.response_chars")
)

type tracedProvider struct {
	inner  Provider
	tracer trace.Tracer
}

// WithTracing opens an "llm.complete" span around every call using the
// global tracer provider. Without an installed SDK the spans are no-ops.
func WithTracing(p Provider) Provider {
	return &tracedProvider{inner: p, tracer: otel.Tracer(tracerName)}
}

func (t *tracedProvider) Name() string { return t.inner.Name() }

func (t *tracedProvider) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := t.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attrProvider.String(t.inner.Name()),
		attrMaxTokens.Int(req.MaxTokens),
		attrHistory.Int(len(req.History)),
		attrJSON.Bool(req.JSON),
		attrPromptChars.Int(len(req.System)+len(req.User)),
	))
	defer span.End()

	out, err := t.inner.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attrResponseChars.Int(len(out)))
	return out, nil
}
