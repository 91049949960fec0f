package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/parser"
)

var (
	verbose bool

	cfg config.Config
	log *slog.Logger
)

// newProvider builds the completion provider. Tests replace it.
var newProvider = func(c config.Config) (llm.Provider, error) {
	if err := c.ValidateProvider(); err != nil {
		return nil, err
	}
	return llm.Build(c, nil)
}

var rootCmd = &cobra.Command{
	Use:   "studyctl",
	Short: "Study tools for local documents",
	Long: `studyctl reads PDF, DOCX, HTML, Markdown, CSV and text files and uses a
completion provider to summarize them, generate quizzes and answer questions.
Provider settings come from STUDYKIT_CONFIG and the environment, as for the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
)

// loadDocument parses path and rejects files with no extractable text.
func loadDocument(path string) (*document.Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	doc, err := parser.ParseFile(path, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, err
	}
	if doc.IsEmpty() {
		return nil, fmt.Errorf("%s: no text could be extracted", path)
	}
	log.Debug("document loaded", "path", path, "pages", len(doc.Pages), "words", doc.WordCount())
	return doc, nil
}
