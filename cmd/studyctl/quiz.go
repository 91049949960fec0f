package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/studykit/internal/quiz"
)

var (
	quizCount      int
	quizDifficulty string
	quizTypes      []string
	quizOutput     string
)

var quizCmd = &cobra.Command{
	Use:   "quiz FILE",
	Short: "Generate quiz questions from a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuiz,
}

func init() {
	quizCmd.Flags().IntVarP(&quizCount, "count", "n", quiz.DefaultQuestions, "number of questions")
	quizCmd.Flags().StringVar(&quizDifficulty, "difficulty", string(quiz.Medium), "easy, medium or hard")
	quizCmd.Flags().StringSliceVar(&quizTypes, "types", []string{string(quiz.MultipleChoice)}, "question types: mcq, true-false")
	quizCmd.Flags().StringVarP(&quizOutput, "output", "o", "text", "text, json or yaml")
	rootCmd.AddCommand(quizCmd)
}

func runQuiz(cmd *cobra.Command, args []string) error {
	opts := quiz.Options{
		NumberOfQuestions: quizCount,
		Difficulty:        quiz.Difficulty(quizDifficulty),
	}
	for _, t := range quizTypes {
		opts.QuestionTypes = append(opts.QuestionTypes, quiz.QuestionType(t))
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	switch quizOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (text, json, yaml)", quizOutput)
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	questions, err := quiz.New(provider, quiz.WithLogger(log)).Generate(cmd.Context(), doc.FullText(), opts)
	if err != nil {
		return err
	}
	return writeQuiz(cmd, questions)
}

func writeQuiz(cmd *cobra.Command, questions []quiz.Question) error {
	out := cmd.OutOrStdout()
	switch quizOutput {
	case "json":
		data, err := json.MarshalIndent(questions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal quiz: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(questions)
		if err != nil {
			return fmt.Errorf("failed to marshal quiz: %w", err)
		}
		fmt.Fprint(out, string(data))
	default:
		for i, q := range questions {
			fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%d. %s", i+1, q.Question)))
			for j, o := range q.Options {
				fmt.Fprintf(out, "   %c) %s\n", 'a'+j, o)
			}
			fmt.Fprintln(out, mutedStyle.Render("   Answer: " + q.CorrectAnswer))
			if e := strings.TrimSpace(q.Explanation); e != "" {
				fmt.Fprintln(out, mutedStyle.Render("   " + e))
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
