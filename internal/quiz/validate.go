package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidQuestion is returned when the provider's reply does not have the
// expected question shape.
var ErrInvalidQuestion = errors.New("quiz: invalid question")

const (
	minQuestionLen = 5
	maxQuestionLen = 500
)

// rawQuestion mirrors the provider's JSON before options are checked.
type rawQuestion struct {
	Question      string          `json:"question"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// validateQuestion checks one question and returns it in normalized form:
// surrounding whitespace trimmed and the answer spelled exactly as its
// matching option.
func validateQuestion(raw rawQuestion) (Question, error) {
	q := Question{
		Question:      strings.TrimSpace(raw.Question),
		CorrectAnswer: strings.TrimSpace(raw.CorrectAnswer),
		Explanation:   strings.TrimSpace(raw.Explanation),
	}
	if n := len(q.Question); n < minQuestionLen || n > maxQuestionLen {
		return Question{}, fmt.Errorf("%w: question text length %d", ErrInvalidQuestion, n)
	}
	if injectionPattern.MatchString(q.Question) {
		return Question{}, fmt.Errorf("%w: question text looks like an instruction", ErrInvalidQuestion)
	}

	if len(raw.Options) == 0 || raw.Options[0] != '[' {
		return Question{}, fmt.Errorf("%w: options must be an array", ErrInvalidQuestion)
	}
	var options []string
	if err := json.Unmarshal(raw.Options, &options); err != nil {
		return Question{}, fmt.Errorf("%w: options must be an array of strings", ErrInvalidQuestion)
	}
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return Question{}, fmt.Errorf("%w: empty option", ErrInvalidQuestion)
		}
		if slices.Contains(q.Options, o) {
			return Question{}, fmt.Errorf("%w: duplicate option %q", ErrInvalidQuestion, o)
		}
		q.Options = append(q.Options, o)
	}
	if len(q.Options) < 2 {
		return Question{}, fmt.Errorf("%w: need at least two options", ErrInvalidQuestion)
	}
	if !slices.Contains(q.Options, q.CorrectAnswer) {
		return Question{}, fmt.Errorf("%w: correct answer must be one of the options", ErrInvalidQuestion)
	}
	return q, nil
}

// parseQuestions decodes `{"questions": [...]}` and validates every entry.
// A single bad question rejects the whole reply.
func parseQuestions(reply string) ([]Question, error) {
	var body struct {
		Questions []rawQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(reply), &body); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrInvalidQuestion, err)
	}
	if len(body.Questions) == 0 {
		return nil, fmt.Errorf("%w: reply has no questions", ErrInvalidQuestion)
	}
	out := make([]Question, 0, len(body.Questions))
	for i, raw := range body.Questions {
		q, err := validateQuestion(raw)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		out = append(out, q)
	}
	return out, nil
}
