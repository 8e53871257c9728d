// Package render prints conversation messages to a terminal as they are
// produced by a turn.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"parley/model"
	"parley/storage"
)

const (
	DefaultWidth = 100
	minWidth     = 20
	previewWidth = 80
	timeLayout   = "15:04"
)

var (
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
)

// Options control the output format.
type Options struct {
	// Width is the line width in cells. Zero means DefaultWidth.
	Width int
	// Plain disables colors, markdown and in-place erasing, for pipes and
	// logs.
	Plain bool
	// Timestamps prefixes each message header with its time.
	Timestamps bool
}

// Terminal renders messages line by line to a writer.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	opts   Options
	styles styles

	// the last printed block, which can be erased while nothing followed it
	lastID    string
	lastLines int
}

// New creates a renderer writing to out.
func New(out io.Writer, opts Options) *Terminal {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Width < minWidth {
		opts.Width = minWidth
	}
	return &Terminal{
		out:    out,
		opts:   opts,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

// RenderMessage prints m.
func (t *Terminal) RenderMessage(m model.Message) {
	block := t.Format(m)
	if block == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, block)
	t.lastID = m.ID
	t.lastLines = strings.Count(block, "\n") + 1
}

// RemoveIntermediate erases a placeholder if it is still the last block on
// screen. Otherwise, and in plain mode, the placeholder stays.
func (t *Terminal) RemoveIntermediate(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opts.Plain || id == "" || id != t.lastID {
		return
	}
	// cursor up, then clear to end of screen
	fmt.Fprintf(t.out, "\x1b[%dA\x1b[J", t.lastLines)
	t.lastID = ""
	t.lastLines = 0
}

// Format returns the printed form of m without writing it.
func (t *Terminal) Format(m model.Message) string {
	switch {
	case m.Intermediate:
		return t.style(t.styles.dim, indent(m.Text, "  … ", t.opts.Width))
	case len(m.ToolResults) > 0:
		return t.formatResults(m)
	case m.Sender == model.SenderUser:
		return t.header("You", t.styles.user, m) + "\n" + indent(m.Text, "  ", t.opts.Width)
	case m.Sender == model.SenderAssistant:
		return t.header("Assistant", t.styles.assistant, m) + "\n" + t.body(m.Text)
	default:
		return t.style(t.styles.err, indent(m.Text, "! ", t.opts.Width))
	}
}

// Transcript formats a stored session, skipping intermediate messages.
func (t *Terminal) Transcript(s *storage.Session) string {
	var b strings.Builder
	b.WriteString(t.style(t.styles.title, s.Name))
	b.WriteString("\n")
	b.WriteString(t.style(t.styles.dim, fmt.Sprintf("%s · %s/%s · %d messages",
		s.UpdatedAt.Format("2006-01-02 15:04"), s.Provider.ID, s.Provider.Model, len(s.Messages))))
	b.WriteString("\n")
	for _, m := range s.Messages {
		if m.Intermediate {
			continue
		}
		b.WriteString("\n")
		b.WriteString(t.Format(m))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *Terminal) header(label string, st lipgloss.Style, m model.Message) string {
	h := t.style(st, label)
	if t.opts.Timestamps && !m.CreatedAt.IsZero() {
		h += " " + t.style(t.styles.dim, m.CreatedAt.Local().Format(timeLayout))
	}
	return h
}

func (t *Terminal) formatResults(m model.Message) string {
	lines := make([]string, 0, len(m.ToolResults))
	for _, r := range m.ToolResults {
		if r.Failed() {
			lines = append(lines, t.style(t.styles.failure,
				truncate(fmt.Sprintf("  ✗ %s: %s", r.ToolName, r.Failure), t.opts.Width)))
			continue
		}
		lines = append(lines, t.style(t.styles.tool, truncate("  ✓ "+r.ToolName, t.opts.Width)))
	}
	return strings.Join(lines, "\n")
}

// body renders assistant text as terminal markdown.
func (t *Terminal) body(text string) string {
	if t.opts.Plain {
		return indent(text, "  ", t.opts.Width)
	}

	text = mdLinkRegex.ReplaceAllString(text, "$2")
	// plain URLs stay plain so the terminal can make them clickable
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(t.opts.Width-4, 2)
	rendered := string(gomarkdown.Render(p.Parse([]byte(text)), r))

	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	return strings.TrimRight(rendered, "\n")
}

func (t *Terminal) style(st lipgloss.Style, s string) string {
	if t.opts.Plain {
		return s
	}
	return st.Render(s)
}

// Preview shortens text to a single line for listings.
func Preview(text string) string {
	return truncate(text, previewWidth)
}
