// Package cli holds the shared terminal styling for the framesource
// command line tool.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckCyan)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckMagenta).
			MarginTop(1)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckGreen)

	WarningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckAmber)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckMagenta)

	KeyStyle = lipgloss.NewStyle().
			Foreground(DeckGray)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DeckWhite)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DeckCyan).
			Padding(0, 2)
)

// PrintVersion prints the version banner.
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("Framesource"), ValueStyle.Render(version))
}

// PrintError prints an error message to stderr.
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message to stderr.
func PrintWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message.
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintInfo prints a key/value line.
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(fmt.Sprintf("%-14s", key+":")), ValueStyle.Render(value))
}

// PrintSection prints a section header.
func PrintSection(title string) {
	fmt.Println(HeaderStyle.Render(title))
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatBytes formats a byte count into a human-readable size.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// RenderBars renders normalized magnitudes as a coloured terminal bar
// row. Low amplitudes come out cold cyan and full scale hot magenta.
func RenderBars(values []float64, width int) string {
	if len(values) == 0 || width < 1 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	colors := []lipgloss.Color{
		lipgloss.Color("#005F87"),
		lipgloss.Color("#0087AF"),
		lipgloss.Color("#00AFD7"),
		lipgloss.Color("#00D7D7"),
		lipgloss.Color("#5FD7D7"),
		lipgloss.Color("#AF87D7"),
		lipgloss.Color("#D75FD7"),
		lipgloss.Color("#D700AF"),
	}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	stride := len(values) / width
	if stride == 0 {
		stride = 1
	}

	var b strings.Builder
	for i := 0; i+stride <= len(values); i += stride {
		// Peak within the bucket keeps transients visible.
		peak := 0.0
		for j := i; j < i+stride; j++ {
			if values[j] > peak {
				peak = values[j]
			}
		}
		norm := peak / maxVal
		blockIdx := int(norm * float64(len(blocks)-1))
		colorIdx := int(norm * float64(len(colors)-1))
		b.WriteString(lipgloss.NewStyle().
			Foreground(colors[colorIdx]).
			Render(string(blocks[blockIdx])))
	}
	return b.String()
}
