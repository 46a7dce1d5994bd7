package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MCarreroPazos/LiDARch/pipeline"
)

// SnapshotMsg carries a fresh status snapshot from the controller.
type SnapshotMsg pipeline.Snapshot

// updatesClosedMsg signals that the controller stopped publishing.
type updatesClosedMsg struct{}

// RunModel is the bubbletea model for a live pipeline run: a stage list,
// an overall progress bar, and the remaining-time estimate.
type RunModel struct {
	styles     *StyleSet
	stageNames []string
	updates    <-chan pipeline.Snapshot
	cancel     func(hard bool)

	bar  progress.Model
	spin spinner.Model

	snap            pipeline.Snapshot
	cancelRequested bool
	width           int
	done            bool
}

// NewRunModel creates the run view. updates delivers controller snapshots;
// cancel is invoked when the user asks to stop (soft first, hard on repeat).
func NewRunModel(theme TermTheme, stageNames []string, updates <-chan pipeline.Snapshot, cancel func(hard bool)) RunModel {
	styles := NewStyleSet(theme)

	bar := progress.New(
		progress.WithGradient(string(theme.AccentDim), string(theme.Accent)),
		progress.WithoutPercentage(),
	)
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = styles.AccentTxt

	return RunModel{
		styles:     styles,
		stageNames: stageNames,
		updates:    updates,
		cancel:     cancel,
		bar:        bar,
		spin:       spin,
		width:      80,
	}
}

// Init starts the spinner and the snapshot pump.
func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForSnapshot())
}

func (m RunModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return updatesClosedMsg{}
		}
		return SnapshotMsg(snap)
	}
}

// Update handles messages for the run view.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 8
		if w < 20 {
			w = 20
		}
		if w > 60 {
			w = 60
		}
		m.bar.Width = w
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.cancel != nil {
				// First press stops at the next unit boundary; the
				// second kills the running tool.
				m.cancel(m.cancelRequested)
			}
			m.cancelRequested = true
			return m, nil
		}

	case SnapshotMsg:
		m.snap = pipeline.Snapshot(msg)
		if m.snap.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.waitForSnapshot()

	case updatesClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the run view.
func (m RunModel) View() string {
	var b strings.Builder

	title := m.styles.Title.Render("▲ LiDARch") + "  " +
		m.styles.Subtitle.Render("LiDAR terrain processing")
	fmt.Fprintf(&b, "\n  %s\n\n", title)

	for i, name := range m.stageNames {
		status := m.snap.Statuses[i]
		glyph, style := m.stageGlyph(status)
		line := fmt.Sprintf("%s %d. %s", glyph, i+1, name)
		if status == pipeline.StageRunning {
			line += fmt.Sprintf("  %s", m.spin.View())
			if m.snap.UnitsTotal > 0 {
				line += m.styles.SecondaryTxt.Render(
					fmt.Sprintf(" %d/%d", m.snap.UnitsDone, m.snap.UnitsTotal))
			}
		}
		fmt.Fprintf(&b, "  %s\n", style.Render(line))
	}

	fmt.Fprintf(&b, "\n  %s %s\n",
		m.bar.ViewAs(m.snap.Percent/100),
		m.styles.SecondaryTxt.Render(fmt.Sprintf("%3.0f%%", m.snap.Percent)))

	if !m.snap.State.Terminal() {
		fmt.Fprintf(&b, "  %s\n",
			m.styles.DimTxt.Render("estimated remaining: "+formatETA(m.snap.Remaining)))
	}

	if m.cancelRequested && !m.snap.State.Terminal() {
		fmt.Fprintf(&b, "\n  %s\n",
			m.styles.WarningTxt.Render("stopping after the current file (press again to abort now)"))
	}
	if m.snap.LastError != "" {
		fmt.Fprintf(&b, "\n  %s\n", m.styles.ErrorTxt.Render(m.snap.LastError))
	}

	hint := m.styles.KbdKey.Render("q") + " " + m.styles.KbdDesc.Render("cancel")
	fmt.Fprintf(&b, "\n  %s\n", hint)

	return b.String()
}

// Done reports whether the run reached a terminal state.
func (m RunModel) Done() bool { return m.done }

// Snapshot returns the last snapshot the view received.
func (m RunModel) Snapshot() pipeline.Snapshot { return m.snap }

func (m RunModel) stageGlyph(status pipeline.StageStatus) (string, lipgloss.Style) {
	switch status {
	case pipeline.StageSucceeded:
		return m.styles.SuccessTxt.Render("✓"), m.styles.PrimaryTxt
	case pipeline.StageSkipped:
		return m.styles.DimTxt.Render("−"), m.styles.DimTxt
	case pipeline.StageFailed:
		return m.styles.ErrorTxt.Render("✗"), m.styles.ErrorTxt
	case pipeline.StageRunning:
		return m.styles.AccentTxt.Render("▸"), m.styles.PrimaryTxt
	default:
		return m.styles.DimTxt.Render("○"), m.styles.SecondaryTxt
	}
}

func formatETA(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
