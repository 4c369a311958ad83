package ui

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cesarempathy/ebs-restore/internal/restore"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	instanceNameStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				Width(40)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(20)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(1, 2)
)

type tickMsg time.Time
type startMsg struct{}
type doneMsg struct{}
type runFinishedMsg struct {
	results []*restore.Result
}

// Model is the Bubble Tea model for confirming and following a restore run.
type Model struct {
	restorer     *restore.Restorer
	jobs         []restore.Job
	flags        restore.Flags
	spinner      spinner.Model
	progressBars map[string]progress.Model
	started      bool
	confirmed    bool
	quitting     bool
	ctx          context.Context
	cancel       context.CancelFunc
	results      []*restore.Result
}

// NewModel creates a new UI model. ctx is the parent of the run's context; quitting
// the UI cancels the run.
func NewModel(ctx context.Context, r *restore.Restorer, jobs []restore.Job) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	progressBars := make(map[string]progress.Model, len(jobs))
	for _, job := range jobs {
		r.Track(job.Instance)
		progressBars[job.Instance.InstanceID] = progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)

	return Model{
		restorer:     r,
		jobs:         jobs,
		flags:        r.GetConfig().Flags,
		spinner:      s,
		progressBars: progressBars,
		ctx:          runCtx,
		cancel:       cancel,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tickCmd())
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		case "enter", "y":
			if !m.confirmed {
				m.confirmed = true
				return m, tea.Batch(func() tea.Msg { return startMsg{} }, m.runCmd())
			}
		case "n":
			if !m.confirmed {
				m.quitting = true
				m.cancel()
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		return m, nil

	case startMsg:
		m.started = true
		return m, m.tickCmd()

	case runFinishedMsg:
		m.results = msg.results
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg {
			return doneMsg{}
		})

	case doneMsg:
		return m, tea.Quit

	case tickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) runCmd() tea.Cmd {
	return func() tea.Msg {
		return runFinishedMsg{results: m.restorer.Run(m.ctx, m.jobs)}
	}
}

// Started reports whether the operator confirmed the run.
func (m Model) Started() bool {
	return m.started || m.confirmed
}

// Results returns the run results once Run has finished.
func (m Model) Results() []*restore.Result {
	return m.results
}

// View renders the UI
func (m Model) View() string {
	if m.quitting && !m.confirmed {
		return "\n  👋 Restore cancelled.\n\n"
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  💾 EBS Snapshot Restore"))
	b.WriteString("\n\n")

	if !m.confirmed {
		plans := make([]*restore.Plan, len(m.jobs))
		for i, job := range m.jobs {
			plans[i] = job.Plan
		}
		b.WriteString(restore.FormatPlan(plans, m.flags))

		if m.flags.Execute && !m.flags.Stop {
			b.WriteString(warningStyle.Render("  ⚠️  WARNING: running instances will be refused without --stop"))
			b.WriteString("\n\n")
		}
		b.WriteString("  Press ")
		b.WriteString(headerStyle.Render("Enter"))
		b.WriteString(" or ")
		b.WriteString(headerStyle.Render("y"))
		b.WriteString(" to start, ")
		b.WriteString(headerStyle.Render("n"))
		b.WriteString(" or ")
		b.WriteString(headerStyle.Render("q"))
		b.WriteString(" to cancel\n\n")
		return b.String()
	}

	cfg := m.restorer.GetConfig()
	configContent := fmt.Sprintf(
		"%s %d\n%s %d\n%s %s\n%s %s",
		infoStyle.Render("Instances:"),
		len(m.jobs),
		infoStyle.Render("Concurrency:"),
		cfg.MaxConcurrency,
		infoStyle.Render("Stop/Start:"),
		onOff(m.flags.Stop)+"/"+onOff(m.flags.Start),
		infoStyle.Render("Run ID:"),
		cfg.RunID,
	)
	if !m.flags.Execute {
		configContent += "\n" + warningStyle.Render("⚠️  DRY RUN MODE - No changes will be made")
	}

	b.WriteString(boxStyle.Render(configContent))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("  Restore Progress:"))
	b.WriteString("\n\n")

	statuses := m.restorer.GetStatuses()
	for _, id := range m.restorer.Order() {
		if status, ok := statuses[id]; ok {
			b.WriteString(m.renderInstanceStatus(status))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if !m.restorer.IsDone() {
		b.WriteString(dimStyle.Render("  Press q or Ctrl+C to cancel"))
	} else {
		b.WriteString(successStyle.Render("  ✅ Restore finished! Press q to exit"))
	}
	b.WriteString("\n\n")

	return b.String()
}

func (m Model) renderInstanceStatus(status *restore.InstanceStatus) string {
	var b strings.Builder

	b.WriteString("  ")
	b.WriteString(instanceNameStyle.Render(truncate(status.DisplayName(), 38)))
	b.WriteString(" ")

	switch status.Step {
	case restore.StepPending, restore.StepPlanned:
		b.WriteString(dimStyle.Render("○"))
		b.WriteString(" ")
		b.WriteString(stepStyle.Render("Pending"))

	case restore.StepDone:
		b.WriteString(successStyle.Render("✓"))
		b.WriteString(" ")
		b.WriteString(successStyle.Render("Completed"))
		b.WriteString(dimStyle.Render(duration(status)))

	case restore.StepDryRun:
		b.WriteString(warningStyle.Render("○"))
		b.WriteString(" ")
		b.WriteString(warningStyle.Render("Dry Run"))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (%d device(s) planned)", status.Devices)))

	case restore.StepFailed:
		b.WriteString(errorStyle.Render("✗"))
		b.WriteString(" ")
		b.WriteString(errorStyle.Render("Failed"))
		b.WriteString(dimStyle.Render(" at " + status.FailedStep.String()))
		if status.Error != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" - %s", truncate(status.Error.Error(), 60))))
		}

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(stepStyle.Render(status.Step.String()))
		b.WriteString(" ")

		if p, ok := m.progressBars[status.InstanceID]; ok && status.Progress > 0 {
			b.WriteString(p.ViewAs(float64(status.Progress) / 100.0))
			if status.Step == restore.StepSwapping && status.Devices > 0 {
				b.WriteString(dimStyle.Render(fmt.Sprintf(" %d/%d devices", len(status.SwappedDevices), status.Devices)))
			}
		}
	}

	return b.String()
}

// HasErrors returns true if any restore failed
func (m Model) HasErrors() bool {
	for _, s := range m.restorer.GetStatuses() {
		if s.Step == restore.StepFailed {
			return true
		}
	}
	return false
}

// PrintSummary prints a summary after the TUI exits
func (m Model) PrintSummary(w io.Writer) {
	if !m.Started() {
		return
	}
	WriteSummary(w, m.restorer)
}

// WriteSummary writes the per-instance outcome of a run.
func WriteSummary(w io.Writer, r *restore.Restorer) {
	statuses := r.GetStatuses()
	rule := headerStyle.Render(strings.Repeat("═", 63))

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, headerStyle.Render("                        RESTORE SUMMARY"))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	successCount := 0
	failedCount := 0
	dryRunCount := 0

	for _, id := range r.Order() {
		s, ok := statuses[id]
		if !ok {
			continue
		}
		switch s.Step {
		case restore.StepDone:
			successCount++
			fmt.Fprintf(w, "  %s %s%s\n", successStyle.Render("✓"), s.DisplayName(), dimStyle.Render(duration(s)))
			writeVolumes(w, s)
		case restore.StepDryRun:
			dryRunCount++
			fmt.Fprintf(w, "  %s %s %s\n", warningStyle.Render("○"), s.DisplayName(), dimStyle.Render("(dry run)"))
		case restore.StepFailed:
			failedCount++
			fmt.Fprintf(w, "  %s %s %s\n", errorStyle.Render("✗"), s.DisplayName(), dimStyle.Render("at "+s.FailedStep.String()))
			if s.Error != nil {
				fmt.Fprintf(w, "    %s %s\n", errorStyle.Render("Error:"), s.Error.Error())
			}
			writeVolumes(w, s)
		default:
			fmt.Fprintf(w, "  %s %s (Incomplete)\n", warningStyle.Render("○"), s.DisplayName())
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Total: %d | ", len(statuses))
	fmt.Fprintf(w, "%s | ", successStyle.Render(fmt.Sprintf("Success: %d", successCount)))
	fmt.Fprintf(w, "%s | ", warningStyle.Render(fmt.Sprintf("Dry Run: %d", dryRunCount)))
	fmt.Fprintf(w, "%s\n", errorStyle.Render(fmt.Sprintf("Failed: %d", failedCount)))
	fmt.Fprintln(w, rule)

	if failedCount > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warningStyle.Render("  ⚠️  Some restores failed. Original volumes were left detached, not deleted."))
	} else if successCount > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, successStyle.Render("  🎉 All restores completed successfully!"))
		fmt.Fprintf(w, "  %s\n", infoStyle.Render("Original volumes are detached and can be deleted once the restore is verified"))
	}
	fmt.Fprintln(w)
}

func writeVolumes(w io.Writer, s *restore.InstanceStatus) {
	swapped := make(map[string]bool, len(s.SwappedDevices))
	for _, d := range s.SwappedDevices {
		swapped[d] = true
	}
	for _, dev := range slices.Sorted(maps.Keys(s.CreatedVolumes)) {
		vol := s.CreatedVolumes[dev]
		state := "created"
		if swapped[dev] {
			state = "attached"
		}
		fmt.Fprintf(w, "    %s %s %s\n", dimStyle.Render(dev+":"), vol, dimStyle.Render("("+state+")"))
	}
}

func duration(s *restore.InstanceStatus) string {
	if s.EndTime.IsZero() || s.StartTime.IsZero() {
		return ""
	}
	return fmt.Sprintf(" (%s)", s.EndTime.Sub(s.StartTime).Round(time.Second))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
