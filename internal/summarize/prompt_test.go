package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/studykit/internal/llm"
)

func TestBuildChunkRequest_Defaults(t *testing.T) {
	req := BuildChunkRequest(Options{}, 0, 1, "body")
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, DefaultTemperature, *req.Temperature)
	assert.Equal(t, 0.2, *req.PresencePenalty)
	assert.Equal(t, 0.5, *req.FrequencyPenalty)
	assert.False(t, req.JSON)
	assert.Contains(t, req.System, "specializing in general content")
	assert.Contains(t, req.System, "well-structured paragraphs")
}

func TestBuildChunkRequest_Directives(t *testing.T) {
	o := Options{
		Format:             Bullets,
		HighlightKeyPoints: true,
		ExtractDefinitions: true,
		PreserveStructure:  true,
		Domain:             Legal,
		MaxTokens:          400,
		Temperature:        llm.Float(0.1),
	}
	req := BuildChunkRequest(o, 1, 4, "clause text")
	assert.Equal(t, 400, req.MaxTokens)
	assert.Equal(t, 0.1, *req.Temperature)
	assert.Contains(t, req.System, "specializing in legal content")
	assert.Contains(t, req.System, "single dash (-)")
	assert.Contains(t, req.System, "hierarchical structure")
	assert.Contains(t, req.User, "(Part 2/4)")
	assert.Contains(t, req.User, "highlight key points")
	assert.Contains(t, req.User, "terms the text defines")
	assert.Contains(t, req.User, "\n\nclause text")

	single := UserPrompt(o, 0, 1, "x")
	assert.Contains(t, single, "comprehensive bullet-point summary")
}

func TestOptions_Variant(t *testing.T) {
	assert.Equal(t, Options{}.Variant(), Options{Format: Paragraphs, Domain: General}.Variant())
	assert.NotEqual(t, Options{}.Variant(), Options{Format: Bullets}.Variant())
	assert.NotEqual(t, Options{}.Variant(), Options{Temperature: llm.Float(0.9)}.Variant())
}
