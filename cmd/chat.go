package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parley/agent"
	"parley/storage"
)

const chatHelp = `Commands:
  /new                 start a new session
  /model NAME          switch model
  /provider ID [MODEL] switch provider
  /session             show the current session
  /help                show this help
  /exit                quit`

func newChatCmd() *cobra.Command {
	var opts engineOptions
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat. The last session is resumed unless another
parley process holds it.

Examples:
  parley chat
  parley chat --provider openai --model gpt-4o-mini
  parley chat --session 3f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), sessionID, opts)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume the session with this id")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "provider id (defaults to default_provider)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model name")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// chatState is the REPL's view of the current session.
type chatState struct {
	a       *app
	e       *engine
	out     io.Writer
	session *storage.Session
}

func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, sessionID string, opts engineOptions) error {
	e, err := a.startEngine(ctx, out, opts)
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	session, err := a.openSession(sessionID, e)
	if err != nil {
		return err
	}
	c := &chatState{a: a, e: e, out: out, session: session}
	if err := c.acquire(session); err != nil {
		return err
	}
	defer func() { c.release() }()

	p := e.loop.Provider()
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("parley"), dimStyle.Render(fmt.Sprintf("%s/%s · %s", p.ID(), p.GetModel(), session.ID)))
	fmt.Fprintln(out, dimStyle.Render("Type /help for commands, /exit to quit."))
	for _, m := range session.Messages {
		if !m.Intermediate {
			e.term.RenderMessage(m)
		}
	}

	lines, errc := readLines(ctx, in)
	for {
		if e.interactive {
			fmt.Fprint(out, "> ")
		}
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(line)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := e.loop.Run(ctx, c.session, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// backend errors were already shown by the renderer
			if errors.Is(err, agent.ErrTurnInProgress) {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
		}
	}
}

// readLines scans in on its own goroutine so that the REPL can stop on
// interrupt while waiting for input.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// openSession resolves the session to chat in: the one asked for, else the
// last one when it is free, else a fresh one.
func (a *app) openSession(id string, e *engine) (*storage.Session, error) {
	if id != "" {
		s, err := a.sessions.Load(id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("session %s not found", id)
		}
		locked, err := a.sessions.CheckSessionLock(id)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, fmt.Errorf("session %s is open in another parley process", id)
		}
		e.prefs.Replace(s.Preferences)
		return s, nil
	}

	if last, err := a.sessions.LoadCurrentSessionID(); err == nil && last != "" {
		if locked, err := a.sessions.CheckSessionLock(last); err == nil && !locked {
			if s, err := a.sessions.Load(last); err == nil && s != nil {
				e.prefs.Replace(s.Preferences)
				return s, nil
			}
		}
	}
	return a.newSession(e), nil
}

func (a *app) newSession(e *engine) *storage.Session {
	p := e.loop.Provider()
	s := storage.NewSession(storage.ProviderSnapshot{ID: p.ID(), Model: p.GetModel()}, time.Now())
	s.SystemPrompt = a.cfg.SystemPrompt
	return s
}

func (c *chatState) acquire(s *storage.Session) error {
	if err := c.a.sessions.LockSession(s.ID); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if err := c.a.sessions.SaveCurrentSessionID(s.ID); err != nil {
		c.e.logger.Warn().Err(err).Msg("failed to remember current session")
	}
	c.session = s
	return nil
}

func (c *chatState) release() {
	if err := c.a.sessions.UnlockSession(c.session.ID); err != nil {
		c.e.logger.Warn().Err(err).Str("session", c.session.ID).Msg("failed to unlock session")
	}
}

// command handles a slash command and reports whether the REPL should end.
func (c *chatState) command(line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/new":
		c.release()
		c.e.prefs.Reset()
		if err := c.acquire(c.a.newSession(c.e)); err != nil {
			return true, err
		}
		fmt.Fprintln(c.out, successStyle.Render("New session "+c.session.ID))
	case "/session":
		fmt.Fprintf(c.out, "%s  %s  %d messages\n", c.session.ID, c.session.Name, len(c.session.Messages))
	case "/model":
		if len(fields) != 2 {
			return false, errors.New("usage: /model NAME")
		}
		p, err := c.a.switchProvider(c.e, c.e.loop.Provider().ID(), fields[1])
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, successStyle.Render("Using "+p.ID()+"/"+p.GetModel()))
	case "/provider":
		if len(fields) < 2 || len(fields) > 3 {
			return false, errors.New("usage: /provider ID [MODEL]")
		}
		var modelName string
		if len(fields) == 3 {
			modelName = fields[2]
		}
		p, err := c.a.switchProvider(c.e, fields[1], modelName)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, successStyle.Render("Using "+p.ID()+"/"+p.GetModel()))
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}
