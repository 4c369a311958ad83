package ui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/restore"
)

var (
	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("86"))
)

// Prompt asks the operator to pick a snapshot for each device.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

// NewPrompt creates a Prompt reading keys from in and drawing on out.
// Nil values use the terminal.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

var _ restore.Selector = (*Prompt)(nil)

// Select runs a picker for one device and returns the chosen snapshot.
func (p *Prompt) Select(inst aws.Instance, att aws.Attachment, candidates []aws.Snapshot) (aws.Snapshot, error) {
	var opts []tea.ProgramOption
	if p.in != nil {
		opts = append(opts, tea.WithInput(p.in))
	}
	if p.out != nil {
		opts = append(opts, tea.WithOutput(p.out))
	}

	final, err := tea.NewProgram(newPickerModel(inst, att, candidates), opts...).Run()
	if err != nil {
		return aws.Snapshot{}, fmt.Errorf("snapshot picker: %w", err)
	}
	return final.(pickerModel).result()
}

// pickerModel is a single-choice list of snapshots.
type pickerModel struct {
	instance   aws.Instance
	attachment aws.Attachment
	candidates []aws.Snapshot
	cursor     int
	chosen     bool
	aborted    bool
}

func newPickerModel(inst aws.Instance, att aws.Attachment, candidates []aws.Snapshot) pickerModel {
	return pickerModel{instance: inst, attachment: att, candidates: candidates}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.candidates)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.candidates) > 0 {
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) result() (aws.Snapshot, error) {
	if !m.chosen || m.aborted || m.cursor >= len(m.candidates) {
		return aws.Snapshot{}, restore.ErrSelectionAborted
	}
	return m.candidates[m.cursor], nil
}

func (m pickerModel) View() string {
	if m.chosen || m.aborted {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("  Select a snapshot for %s on %s", m.attachment.DeviceName, m.instance.DisplayName())))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  current volume %s, %s", m.attachment.VolumeID, restore.FormatGiB(m.attachment.SizeGiB))))
	b.WriteString("\n\n")

	for i, s := range m.candidates {
		cursor := "  "
		row := fmt.Sprintf("%-24s %s  %-8s %s",
			s.SnapshotID,
			s.StartTime.UTC().Format("2006-01-02 15:04"),
			restore.FormatGiB(s.SizeGiB),
			truncate(snapshotLabel(s), 40),
		)
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
			row = selectedRowStyle.Render(row)
		}
		b.WriteString("  ")
		b.WriteString(cursor)
		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  ↑/↓ to move, Enter to select, q or Esc to abort"))
	b.WriteString("\n")
	return b.String()
}

func snapshotLabel(s aws.Snapshot) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Description
}
