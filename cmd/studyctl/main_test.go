package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/llm/llmtest"
	"github.com/dgallion1/studykit/internal/pomodoro"
	"github.com/dgallion1/studykit/internal/quiz"
)

const oneQuestion = `{"questions": [{"question": "What makes energy?", "options": ["Mitochondria", "Ribosomes"], "correctAnswer": "Mitochondria", "explanation": "See page 2."}]}`

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biology.txt")
	content := "Cells are the basic unit of life.\n\fMitochondria produce energy for the cell.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with a scripted provider and returns stdout.
func execute(t *testing.T, fake *llmtest.Fake, args ...string) (string, error) {
	t.Helper()
	orig := newProvider
	newProvider = func(config.Config) (llm.Provider, error) { return fake, nil }
	t.Cleanup(func() { newProvider = orig })

	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestQuizCmd_YAML(t *testing.T) {
	fake := llmtest.New(oneQuestion)
	out, err := execute(t, fake, "quiz", writeDoc(t), "--count", "1", "--difficulty", "easy", "--output", "yaml")
	require.NoError(t, err)

	var qs []quiz.Question
	require.NoError(t, yaml.Unmarshal([]byte(out), &qs))
	require.Len(t, qs, 1)
	assert.Equal(t, "Mitochondria", qs[0].CorrectAnswer)
	assert.Contains(t, out, "correct_answer: Mitochondria")
	assert.Contains(t, fake.Requests()[0].User, "easy")
}

func TestQuizCmd_Text(t *testing.T) {
	out, err := execute(t, llmtest.New(oneQuestion), "quiz", writeDoc(t), "--count", "1", "--difficulty", "medium", "--output", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "What makes energy?")
	assert.Contains(t, out, "a) Mitochondria")
	assert.Contains(t, out, "Answer: Mitochondria")
}

func TestQuizCmd_RejectsUnknownOutput(t *testing.T) {
	fake := llmtest.New(oneQuestion)
	_, err := execute(t, fake, "quiz", writeDoc(t), "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
	assert.Zero(t, fake.Calls())
}

func TestAskCmd_PrintsReplyAndPages(t *testing.T) {
	fake := llmtest.New("They produce energy.")
	out, err := execute(t, fake, "ask", writeDoc(t), "What", "do", "mitochondria", "produce?")
	require.NoError(t, err)
	assert.Contains(t, out, "They produce energy.")
	assert.Contains(t, out, "Relevant pages: 2")
	assert.Equal(t, "What do mitochondria produce?", fake.Requests()[0].User)
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, llmtest.New(), "ask", writeDoc(t))
	assert.Error(t, err)
}

func TestSummarizeCmd(t *testing.T) {
	fake := llmtest.New("Cells make **energy**.")
	out, err := execute(t, fake, "summarize", writeDoc(t), "--format", "bullets", "--html")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>energy</strong>")
	assert.Contains(t, fake.Requests()[0].System, "bullet")
}

func TestSummarizeCmd_RejectsBadFormat(t *testing.T) {
	fake := llmtest.New()
	_, err := execute(t, fake, "summarize", writeDoc(t), "--format", "haiku")
	assert.Error(t, err)
	assert.Zero(t, fake.Calls())
}

func TestSummarizeCmd_MissingFile(t *testing.T) {
	_, err := execute(t, llmtest.New(), "summarize", filepath.Join(t.TempDir(), "nope.txt"), "--format", "paragraphs")
	assert.Error(t, err)
}

func TestRenderStatus(t *testing.T) {
	line := renderStatus(pomodoro.Snapshot{
		Phase:            pomodoro.ShortBreak,
		RemainingSeconds: 150,
		Progress:         50,
		CompletedWork:    3,
	})
	assert.Contains(t, line, "Short break")
	assert.Contains(t, line, "02:30")
	assert.Contains(t, line, strings.Repeat("█", barWidth/2))
	assert.Contains(t, line, "done 3 (paused)")

	hidden := renderStatus(pomodoro.Snapshot{Running: true, Hidden: true})
	assert.Contains(t, hidden, "(suspended)")
}

func TestReadCommands(t *testing.T) {
	c, err := pomodoro.New(pomodoro.DefaultSettings())
	require.NoError(t, err)
	defer c.Close()

	var reported []error
	in := strings.NewReader("p\n+\nzz\ns\nq\nr\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, readCommands(ctx, in, c, func(err error) { reported = append(reported, err) }))

	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), `"zz"`)
	snap := c.Snapshot()
	assert.Equal(t, pomodoro.ShortBreak, snap.Phase)
	assert.Equal(t, 1, snap.CompletedWork)
}
