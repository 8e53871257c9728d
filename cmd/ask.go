package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var opts engineOptions

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a single question and print the answer",
		Long: `Ask a single question in a new session and print the answer. Tools and
memory are used as in chat.

Examples:
  parley ask "What time is it in Tokyo?"
  parley ask --provider anthropic "Summarize https://go.dev/blog"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ask(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Provider, "provider", "", "provider id (defaults to default_provider)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model name")
	return cmd
}

// ask runs one turn. On a terminal the turn is rendered as in chat;
// otherwise only the answer text is written, for use in pipes.
func (a *app) ask(ctx context.Context, out io.Writer, question string, opts engineOptions) error {
	opts.AnswerOnly = true
	e, err := a.startEngine(ctx, out, opts)
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	session := a.newSession(e)

	result, err := e.loop.Run(ctx, session, question)
	if err != nil {
		return err
	}
	if !e.interactive {
		fmt.Fprintln(out, result.Answer.Text)
	}
	return nil
}
