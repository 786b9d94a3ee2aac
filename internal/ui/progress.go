// Package ui implements the Bubbletea progress display for long
// running decode operations.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Deck colour palette
var (
	deckCyan    = lipgloss.Color("#00D7D7")
	deckMagenta = lipgloss.Color("#D700AF")
)

// DumpProgress reports progress while decoding frames to disk.
type DumpProgress struct {
	Frames      int64
	TotalFrames int64
	Elapsed     time.Duration
	FileSize    int64
}

// DumpComplete signals the end of a dump run.
type DumpComplete struct {
	OutputFile string
	Frames     int64
	SampleRate int
	FileSize   int64
	TotalTime  time.Duration
	Err        error
}

// progressQuitMsg is sent when it's time to quit after showing completion
type progressQuitMsg struct{}

// Model implements the Bubbletea model for the dump progress display
type Model struct {
	progressBar progress.Model

	state    DumpProgress
	complete *DumpComplete

	startTime       time.Time
	width           int
	completionDelay time.Duration
}

// NewModel creates a new dump progress model
func NewModel() *Model {
	// Deck gradient: cold cyan → hot magenta
	p := progress.New(
		progress.WithGradient(string(deckCyan), string(deckMagenta)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &Model{
		progressBar:     p,
		startTime:       time.Now(),
		completionDelay: time.Second,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = min(msg.Width-30, 50)
		return m, nil

	case DumpProgress:
		m.state = msg
		return m, nil

	case DumpComplete:
		m.complete = &msg
		return m, tea.Tick(m.completionDelay, func(t time.Time) tea.Msg {
			return progressQuitMsg{}
		})

	case progressQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil {
			return m, tea.Quit
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m *Model) View() string {
	if m.complete != nil {
		return m.renderComplete()
	}
	return m.renderProgress()
}

// CompletionSummary returns the final summary for printing after the
// program exits. Returns empty string if the dump did not finish.
func (m *Model) CompletionSummary() string {
	if m.complete == nil {
		return ""
	}
	return m.renderComplete()
}

func (m *Model) renderProgress() string {
	var s strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(deckCyan).
		Render("Framesource")

	s.WriteString(title)
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(deckMagenta).Render("Decoding frames"))
	s.WriteString("\n\n")

	if m.state.TotalFrames == 0 {
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Starting decode..."))
		return m.box(s.String())
	}

	percent := float64(m.state.Frames) / float64(m.state.TotalFrames)
	s.WriteString("Progress: ")
	s.WriteString(m.progressBar.ViewAs(percent))
	s.WriteString(fmt.Sprintf("  %d%%", int(percent*100)))
	s.WriteString("\n\n")

	elapsed := m.state.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(m.startTime)
	}

	var eta time.Duration
	if percent > 0 {
		eta = time.Duration(float64(elapsed)/percent) - elapsed
	}

	timingInfo := fmt.Sprintf("Frames: %d / %d  │  Time: %s  │  ETA: %s",
		m.state.Frames,
		m.state.TotalFrames,
		formatDuration(elapsed),
		formatDuration(eta))
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(timingInfo))

	if m.state.FileSize > 0 {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Faint(true).Render(
			fmt.Sprintf("Written: %s", formatBytes(m.state.FileSize))))
	}

	return m.box(s.String())
}

func (m *Model) renderComplete() string {
	var s strings.Builder

	if m.complete.Err != nil {
		title := lipgloss.NewStyle().
			Bold(true).
			Foreground(deckMagenta).
			Render("✗ Decode Failed")
		s.WriteString(title)
		s.WriteString("\n\n")
		s.WriteString(m.complete.Err.Error())
		return m.box(s.String()) + "\n"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(deckCyan).
		Render("✓ Decode Complete")

	s.WriteString(title)
	s.WriteString("\n\n")

	dimLabel := lipgloss.NewStyle().Faint(true)

	s.WriteString(fmt.Sprintf("%s%s\n", dimLabel.Render("Output:   "), m.complete.OutputFile))
	s.WriteString(fmt.Sprintf("%s%d frames\n", dimLabel.Render("Frames:   "), m.complete.Frames))

	if m.complete.SampleRate > 0 {
		audioDuration := time.Duration(m.complete.Frames) * time.Second / time.Duration(m.complete.SampleRate)
		var speed float64
		if m.complete.TotalTime > 0 {
			speed = float64(audioDuration) / float64(m.complete.TotalTime)
		}
		s.WriteString(fmt.Sprintf("%s%.1fs audio in %s (%.1fx realtime)\n",
			dimLabel.Render("Duration: "),
			audioDuration.Seconds(),
			formatDuration(m.complete.TotalTime),
			speed))
	}

	s.WriteString(fmt.Sprintf("%s%s", dimLabel.Render("Size:     "), formatBytes(m.complete.FileSize)))

	return m.box(s.String()) + "\n"
}

func (m *Model) box(content string) string {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(deckCyan).
		Padding(1, 2).
		Render(content)
}

// Helper functions

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
