package cli

import (
	"fmt"
	"sort"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/pdfstract-go/internal/compare"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the task status
type tickMsg time.Time

// taskUpdateMsg carries the updated task snapshot
type taskUpdateMsg struct {
	task compare.Task
	err  error
}

// progressModel is the bubbletea model for comparison task progress.
type progressModel struct {
	store    *compare.Store
	taskID   string
	task     compare.Task
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(store *compare.Store, task compare.Task) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		store:    store,
		taskID:   task.ID,
		task:     task,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		// Fetch task snapshot
		return m, m.fetchTask()

	case taskUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("fetch task status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.task = msg.task

		if m.task.Completed() {
			m.done = true
			return m, tea.Quit
		}

		// Continue polling while engines are still running
		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	finished := 0
	for _, oc := range m.task.Outcomes {
		if oc.Status.Terminal() {
			finished++
		}
	}

	var pct float64
	if len(m.task.Engines) > 0 {
		pct = float64(finished) / float64(len(m.task.Engines))
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.task.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d engines", finished, len(m.task.Engines))
	hint := m.theme.hintStyle().Render("Press q to stop watching (conversions keep running)")

	out := fmt.Sprintf("%s %s %s\n", status, progressBar, counts)
	for _, line := range m.outcomeLines() {
		out += line + "\n"
	}
	out += hint + "\n"
	return out
}

// outcomeLines renders one status line per engine, in stable order.
func (m progressModel) outcomeLines() []string {
	names := make([]string, 0, len(m.task.Outcomes))
	for name := range m.task.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		oc := m.task.Outcomes[name]
		var mark string
		switch oc.Status {
		case compare.OutcomeSuccess:
			mark = m.theme.completedStyle().Render("✓")
		case compare.OutcomeError:
			mark = m.theme.errorStyle().Render("✗")
		case compare.OutcomeRunning:
			mark = m.theme.statusStyle().Render("…")
		default:
			mark = "·"
		}
		line := fmt.Sprintf("  %s %-12s %s", mark, name, oc.Status)
		if oc.Status.Terminal() && oc.ElapsedMS > 0 {
			line += fmt.Sprintf(" (%dms)", oc.ElapsedMS)
		}
		lines = append(lines, line)
	}
	return lines
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped watching; waiting for conversions to finish...\n")
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Comparison failed: %s\n", m.err))
	}

	out := m.theme.completedStyle().Render("✓ Comparison completed") + "\n\n"
	for _, line := range m.outcomeLines() {
		out += line + "\n"
	}
	return out
}

// fetchTask reads the current task snapshot from the store.
// Runs as a command to keep Update() non-blocking.
func (m progressModel) fetchTask() tea.Cmd {
	return func() tea.Msg {
		task, err := m.store.Get(m.taskID)
		return taskUpdateMsg{task: task, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunCompareProgress runs the interactive progress UI for a comparison
// task. Returns the last seen snapshot; detached reports whether the user
// stopped watching before the task finished.
func RunCompareProgress(store *compare.Store, task compare.Task) (last compare.Task, detached bool, err error) {
	model := newProgressModel(store, task)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return task, false, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.err != nil {
			return m.task, false, m.err
		}
		return m.task, m.quitting, nil
	}
	return task, false, nil
}
