package cli

import "github.com/charmbracelet/lipgloss"

// Deck colour palette
// Shared theme colours for consistent branding across CLI and TUI
var (
	DeckCyan    = lipgloss.Color("#00D7D7") // Primary cyan
	DeckMagenta = lipgloss.Color("#D700AF") // Hot cue magenta
	DeckAmber   = lipgloss.Color("#FFAF00") // Warning amber
	DeckGreen   = lipgloss.Color("#00AF5F") // Success green
	DeckGray    = lipgloss.Color("#808080") // Muted gray
	DeckWhite   = lipgloss.Color("#FFFFFF") // Plain text
)
