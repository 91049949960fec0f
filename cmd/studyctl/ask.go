package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgallion1/studykit/internal/chat"
)

var (
	askLength string
	askTone   string
	askFormat string
	askNoRefs bool
)

var askCmd = &cobra.Command{
	Use:   "ask FILE QUESTION...",
	Short: "Ask a question about a document",
	Long: `Answers a question using the start of the document as context and lists
the pages whose keywords best match the question.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askLength, "length", string(chat.Balanced), "concise, balanced or detailed")
	askCmd.Flags().StringVar(&askTone, "tone", string(chat.Simple), "simple or technical")
	askCmd.Flags().StringVar(&askFormat, "style", string(chat.Conversational), "conversational or structured")
	askCmd.Flags().BoolVar(&askNoRefs, "no-refs", false, "do not ask for page citations")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	session := chat.NewSession(uuid.NewString(), doc, provider)
	reply, err := session.Send(cmd.Context(), strings.Join(args[1:], " "), chat.Settings{
		ResponseLength:  chat.ResponseLength(askLength),
		Tone:            chat.Tone(askTone),
		Format:          chat.Format(askFormat),
		IncludePageRefs: !askNoRefs,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, reply.Content)
	if len(reply.PageReferences) > 0 {
		pages := make([]string, len(reply.PageReferences))
		for i, p := range reply.PageReferences {
			pages[i] = strconv.Itoa(p)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, mutedStyle.Render("Relevant pages: " + strings.Join(pages, ", ")))
	}
	return nil
}
