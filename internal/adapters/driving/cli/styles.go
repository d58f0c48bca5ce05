package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme is the colour palette for chat output.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// Styles renders the parts of a chat transcript.
type Styles struct {
	// Prompt marks the user's input line.
	Prompt lipgloss.Style

	// Assistant renders the reply text.
	Assistant lipgloss.Style

	// Label renders section headings such as "Sources".
	Label lipgloss.Style

	// Source renders one cited source.
	Source lipgloss.Style

	// Suggestion renders one suggested follow-up.
	Suggestion lipgloss.Style

	// Status renders the turn and phase footer.
	Status lipgloss.Style

	// Error renders failures.
	Error lipgloss.Style
}

// NewStyles creates styles from a theme. When colour is false every style
// renders plain text.
func NewStyles(theme *Theme, colour bool) *Styles {
	if !colour {
		plain := lipgloss.NewStyle()
		return &Styles{
			Prompt: plain, Assistant: plain, Label: plain, Source: plain,
			Suggestion: plain, Status: plain, Error: plain,
		}
	}
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		Prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Assistant: lipgloss.NewStyle(),

		Label: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),

		Source: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Suggestion: lipgloss.NewStyle().
			Foreground(theme.Secondary),

		Status: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error),
	}
}

// isTerminal reports whether stream is an interactive terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// stylesFor picks coloured styles for terminals and plain ones otherwise.
func stylesFor(w io.Writer) *Styles {
	return NewStyles(DefaultTheme(), isTerminal(w))
}
