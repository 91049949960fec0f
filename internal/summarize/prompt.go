package summarize

import (
	"fmt"
	"strings"

	"github.com/dgallion1/studykit/internal/llm"
)

const (
	presencePenalty  = 0.2
	frequencyPenalty = 0.5
)

const markdownGuide = `Use markdown formatting:
- **bold** for important terms and concepts
- *italic* for definitions, explanations and key insights
- ` + "`code`" + ` for technical terms
- Preserve citations in (citation: X) format
- Preserve mathematical formulas`

const unifySystemPrompt = "You are a precise and concise summarizer. Create a unified summary from multiple parts while maintaining coherence and flow."

// SystemPrompt returns the system instructions for per-chunk requests.
func SystemPrompt(o Options) string {
	o = o.withDefaults()
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a precise and concise summarizer specializing in %s content. ", o.Domain)
	sb.WriteString("Create clear, accurate summaries while preserving key information and context.\n")
	switch o.Domain {
	case Academic:
		sb.WriteString("Keep the argument structure, methods and findings apart, and keep terminology exact.\n")
	case Legal:
		sb.WriteString("Keep parties, obligations, conditions and defined terms exactly as stated. Do not paraphrase clause references.\n")
	}
	sb.WriteString(markdownGuide)
	sb.WriteString("\n")
	if o.PreserveStructure {
		sb.WriteString("Maintain the hierarchical structure of the source.\n")
	}
	if o.Format == Bullets {
		sb.WriteString("Format output as clear, concise bullet points. Each point must start with a single dash (-). Do not include empty lines between points. Do not use nested bullets.")
	} else {
		sb.WriteString("Format output as well-structured paragraphs.")
	}
	return sb.String()
}

// UserPrompt returns the user content for chunk index i of total. A lone
// chunk asks for a complete summary; otherwise the part is tagged so the
// model keeps continuity with its neighbours.
func UserPrompt(o Options, index, total int, text string) string {
	o = o.withDefaults()
	var directives []string
	if total > 1 {
		directives = append(directives, fmt.Sprintf(
			"Please summarize this part of the text (Part %d/%d). Focus on key points and maintain continuity with other parts.",
			index+1, total))
		if o.Format == Bullets {
			directives = append(directives, "Format the output as a clean bullet-point list with each point starting with a single dash (-). Do not use empty lines between points. Preserve any citations in parentheses.")
		} else {
			directives = append(directives, "Format the output as paragraphs.")
		}
	} else {
		style := "paragraph-style"
		if o.Format == Bullets {
			style = "bullet-point"
		}
		directives = append(directives, fmt.Sprintf(
			"Please provide a comprehensive %s summary of the following text, focusing on the main points and key details.", style))
		if o.Format == Bullets {
			directives = append(directives, "Format the summary as bullet points. Use a single dash (-) for each point and do not include empty lines between points.")
		} else {
			directives = append(directives, "Format the summary as paragraphs.")
		}
	}
	if o.HighlightKeyPoints {
		directives = append(directives, "Use markdown formatting to highlight key points and important concepts.")
	}
	if o.ExtractDefinitions {
		directives = append(directives, "List any terms the text defines, each with its definition in *italic*.")
	}
	if o.PreserveStructure {
		directives = append(directives, "Keep the order and nesting of the source sections.")
	}
	return strings.Join(directives, " ") + "\n\n" + text
}

// BuildChunkRequest maps options and one chunk to a provider request.
func BuildChunkRequest(o Options, index, total int, text string) llm.Request {
	o = o.withDefaults()
	return llm.Request{
		System:           SystemPrompt(o),
		User:             UserPrompt(o, index, total, text),
		MaxTokens:        o.MaxTokens,
		Temperature:      llm.Float(*o.Temperature),
		PresencePenalty:  llm.Float(presencePenalty),
		FrequencyPenalty: llm.Float(frequencyPenalty),
	}
}

// BuildUnifyRequest asks the provider to merge the joined part summaries.
func BuildUnifyRequest(o Options, joined string) llm.Request {
	o = o.withDefaults()
	return llm.Request{
		System:           unifySystemPrompt,
		User:             "Please create a coherent final summary from these individual summaries:\n\n" + joined,
		MaxTokens:        o.MaxTokens,
		Temperature:      llm.Float(*o.Temperature),
		PresencePenalty:  llm.Float(presencePenalty),
		FrequencyPenalty: llm.Float(frequencyPenalty),
	}
}
