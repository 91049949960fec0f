// Package quiz generates study questions from document text with one
// JSON-mode provider request.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
)

var ErrNoContent = errors.New("quiz: no content provided")

const (
	DefaultQuestions = 10
	MaxQuestions     = 50

	temperature = 0.7
	maxTokens   = 2000
	// maxContentRunes bounds how much document text goes into the prompt.
	maxContentRunes = 24000
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	TrueFalse      QuestionType = "true-false"
)

// Question is a validated quiz item. CorrectAnswer is always one of Options.
type Question struct {
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
}

type Progress struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

type Options struct {
	NumberOfQuestions int            `json:"number_of_questions,omitempty"`
	Difficulty        Difficulty     `json:"difficulty,omitempty"`
	QuestionTypes     []QuestionType `json:"question_types,omitempty"`

	OnProgress func(Progress) `json:"-"`
}

func (o Options) withDefaults() Options {
	if o.NumberOfQuestions <= 0 {
		o.NumberOfQuestions = DefaultQuestions
	}
	if o.Difficulty == "" {
		o.Difficulty = Medium
	}
	if len(o.QuestionTypes) == 0 {
		o.QuestionTypes = []QuestionType{MultipleChoice}
	}
	return o
}

func (o Options) Validate() error {
	if o.NumberOfQuestions < 0 || o.NumberOfQuestions > MaxQuestions {
		return fmt.Errorf("number of questions must be between 1 and %d", MaxQuestions)
	}
	switch o.Difficulty {
	case "", Easy, Medium, Hard:
	default:
		return fmt.Errorf("unknown difficulty %q", o.Difficulty)
	}
	for _, t := range o.QuestionTypes {
		if t != MultipleChoice && t != TrueFalse {
			return fmt.Errorf("unknown question type %q", t)
		}
	}
	return nil
}

const systemPrompt = `You are a quiz generator that creates educational questions based on provided content.
For multiple choice questions, always provide exactly 4 options as an array. For true/false questions, provide "True" and "False" as options.

Format each question as a JSON object with:
{
  "question": "The question text",
  "options": ["Option A", "Option B", "Option C", "Option D"] for MCQ or ["True", "False"] for T/F,
  "correctAnswer": "The correct option",
  "explanation": "Explanation of why this is correct"
}

Return a JSON object with a "questions" array containing these question objects.`

// BuildRequest maps options and content to the provider request.
func BuildRequest(content string, o Options) llm.Request {
	o = o.withDefaults()
	types := make([]string, len(o.QuestionTypes))
	for i, t := range o.QuestionTypes {
		types[i] = string(t)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s difficulty quiz with %d questions based on the following content. ", o.Difficulty, o.NumberOfQuestions)
	fmt.Fprintf(&sb, "Include a mix of %s questions. For each question, provide:\n", strings.Join(types, " and "))
	sb.WriteString("1. The question\n2. Four possible options (for MCQs) or True/False options\n3. The correct answer\n4. A brief explanation of why it's correct\n\n")
	sb.WriteString("Content to base the quiz on:\n")
	sb.WriteString(truncateRunes(content, maxContentRunes))
	return llm.Request{
		System:      systemPrompt,
		User:        sb.String(),
		MaxTokens:   maxTokens,
		Temperature: llm.Float(temperature),
		JSON:        true,
	}
}

type Generator struct {
	provider llm.Provider
	bus      *events.Bus
	log      *slog.Logger
}

type Option func(*Generator)

func WithBus(bus *events.Bus) Option {
	return func(g *Generator) { g.bus = bus }
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

func New(p llm.Provider, opts ...Option) *Generator {
	g := &Generator{provider: p, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks for a quiz over content. Any malformed question fails the
// whole call with ErrInvalidQuestion. Extra questions beyond the requested
// number are dropped.
func (g *Generator) Generate(ctx context.Context, content string, o Options) ([]Question, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o = o.withDefaults()

	g.progress(o, "Analyzing content...", 0)
	req := BuildRequest(content, o)
	g.progress(o, "Generating questions...", 50)
	reply, err := g.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("quiz generation: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidQuestion)
	}

	g.progress(o, "Processing questions...", 90)
	questions, err := parseQuestions(reply)
	if err != nil {
		g.log.Warn("quiz reply rejected", "error", err)
		return nil, err
	}
	if len(questions) > o.NumberOfQuestions {
		questions = questions[:o.NumberOfQuestions]
	}
	g.progress(o, "Quiz generated successfully!", 100)
	return questions, nil
}

func (g *Generator) progress(o Options, status string, pct float64) {
	p := Progress{Status: status, Progress: pct}
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
	g.bus.Publish(events.TopicQuizProgress, p)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
