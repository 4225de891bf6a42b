package tui

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/blebench/internal/harness"
)

// ProgressState tracks a running throughput test.
type ProgressState struct {
	progress    progress.Model
	percent     float64
	description string
	isActive    bool
}

// NewProgressState creates a new progress tracking state.
func NewProgressState() ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		progress: p,
	}
}

// Start begins tracking a new operation.
func (p *ProgressState) Start(description string) {
	p.isActive = true
	p.percent = 0
	p.description = description
}

// Update applies a harness progress report.
func (p *ProgressState) Update(pr harness.Progress) {
	p.percent = pr.Fraction()
	p.description = fmt.Sprintf("%s / %s packets", humanize.Comma(int64(pr.Done)), humanize.Comma(int64(pr.Planned)))
	if pr.Failures > 0 {
		p.description += fmt.Sprintf(", %s failed", humanize.Comma(int64(pr.Failures)))
	}
}

// Complete marks the operation as complete.
func (p *ProgressState) Complete() {
	p.percent = 1.0
	p.isActive = false
}

// IsActive returns whether an operation is in progress.
func (p *ProgressState) IsActive() bool {
	return p.isActive
}

// SetWidth resizes the bar.
func (p *ProgressState) SetWidth(w int) {
	p.progress.Width = w
}

// View renders the progress bar.
func (p ProgressState) View() string {
	if !p.isActive {
		return ""
	}
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return descStyle.Render(p.description) + "\n" + p.progress.ViewAs(p.percent)
}

// progressTracker is written by harness workers and polled by the UI.
type progressTracker struct {
	latest atomic.Pointer[harness.Progress]
}

func (t *progressTracker) report(p harness.Progress) { t.latest.Store(&p) }

func (t *progressTracker) load() (harness.Progress, bool) {
	p := t.latest.Load()
	if p == nil {
		return harness.Progress{}, false
	}
	return *p, true
}

// progressTickMsg asks the model to poll the tracker.
type progressTickMsg time.Time

func progressTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}
