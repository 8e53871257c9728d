package render

import "github.com/charmbracelet/lipgloss"

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")
)

// styles are built per renderer so color detection follows the output
// writer rather than os.Stdout.
type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	dim       lipgloss.Style
	tool      lipgloss.Style
	failure   lipgloss.Style
	err       lipgloss.Style
	title     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		user:      r.NewStyle().Foreground(successColor).Bold(true),
		assistant: r.NewStyle().Foreground(accentColor).Bold(true),
		dim:       r.NewStyle().Foreground(dimColor),
		tool:      r.NewStyle().Foreground(warningColor),
		failure:   r.NewStyle().Foreground(dangerColor),
		err:       r.NewStyle().Foreground(dangerColor).Bold(true),
		title:     r.NewStyle().Bold(true),
	}
}
