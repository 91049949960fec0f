package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"

	"github.com/dgallion1/studykit/internal/chunker"
	"github.com/dgallion1/studykit/internal/summarize"
)

var (
	sumFormat      string
	sumDomain      string
	sumHighlight   bool
	sumDefinitions bool
	sumStructure   bool
	sumConfidence  bool
	sumHTML        bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize FILE",
	Short: "Summarize a document",
	Long: `Splits the document into chunks, summarizes each one and merges the parts
into a single summary. Progress is written to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVarP(&sumFormat, "format", "f", string(summarize.Paragraphs), "bullets or paragraphs")
	summarizeCmd.Flags().StringVar(&sumDomain, "domain", string(summarize.General), "general, academic or legal")
	summarizeCmd.Flags().BoolVar(&sumHighlight, "highlight", false, "emphasize key points")
	summarizeCmd.Flags().BoolVar(&sumDefinitions, "definitions", false, "call out definitions of key terms")
	summarizeCmd.Flags().BoolVar(&sumStructure, "structure", false, "keep the document's section structure")
	summarizeCmd.Flags().BoolVar(&sumConfidence, "confidence", false, "prefix a confidence score")
	summarizeCmd.Flags().BoolVar(&sumHTML, "html", false, "render the summary as HTML")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	opts := summarize.Options{
		Format:             summarize.Format(sumFormat),
		Domain:             summarize.Domain(sumDomain),
		HighlightKeyPoints: sumHighlight,
		ExtractDefinitions: sumDefinitions,
		PreserveStructure:  sumStructure,
		ConfidenceScoring:  sumConfidence,
		OnProgress: func(p summarize.Progress) {
			fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render(fmt.Sprintf("[%3.0f%%] %s", p.Progress, p.Status)))
		},
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	chunkCfg, err := chunker.NewConfig(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.TokenizerPath)
	if err != nil {
		return err
	}

	s := summarize.New(provider, summarize.WithChunkConfig(chunkCfg), summarize.WithLogger(log))
	res, err := s.Run(cmd.Context(), doc.FullText(), opts)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", args[0], err)
	}
	if res.AggregationErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("final merge failed; showing the part summaries"))
	}

	if !sumHTML {
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		return nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(res.Text), &buf); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), buf.String())
	return nil
}
