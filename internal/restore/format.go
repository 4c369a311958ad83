package restore

import (
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/charmbracelet/lipgloss"
)

// Plan formatting styles
var (
	planTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	planHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	planBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)

	planRestoreStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42"))

	planDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	planInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	planWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	planTableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("99")).
				PaddingRight(2)
)

// FormatGiB renders a size in GiB in human readable form.
func FormatGiB(gib int32) string {
	return (datasize.ByteSize(gib) * datasize.GB).String()
}

// FormatPlan renders the restore plans as a colored string
func FormatPlan(plans []*Plan, flags Flags) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("═══════════════════════════════════════════════════════════════════════════"))
	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("                               RESTORE PLAN"))
	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("═══════════════════════════════════════════════════════════════════════════"))
	b.WriteString("\n\n")

	b.WriteString(planHeaderStyle.Render("Configuration:"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %s\n", planInfoStyle.Render("Stop before restore:"), yesNo(flags.Stop))
	fmt.Fprintf(&b, "  %s %s\n", planInfoStyle.Render("Start after restore:"), yesNo(flags.Start))
	if !flags.Execute {
		fmt.Fprintf(&b, "  %s\n", planWarningStyle.Render("⚠️  DRY RUN MODE - No changes will be made"))
	}
	b.WriteString("\n")

	devices := 0
	for _, p := range plans {
		devices += p.Len()
	}
	b.WriteString(planHeaderStyle.Render(fmt.Sprintf("Instances to Restore (%d):", len(plans))))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s\n\n", planRestoreStyle.Render(fmt.Sprintf("✓ Devices: %d", devices)))

	for _, p := range plans {
		b.WriteString(planBoxStyle.Render(renderPlanTable(p)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if flags.Execute && devices > 0 {
		step := 1
		b.WriteString(planHeaderStyle.Render("Actions to be performed:"))
		b.WriteString("\n")
		if flags.Stop {
			fmt.Fprintf(&b, "  %s Stop instances and wait until stopped\n", planDimStyle.Render(fmt.Sprintf("%d.", step)))
			step++
		}
		fmt.Fprintf(&b, "  %s Create %d volume(s) from the selected snapshots\n", planDimStyle.Render(fmt.Sprintf("%d.", step)), devices)
		step++
		fmt.Fprintf(&b, "  %s Detach original volumes and attach restored ones on the same devices\n", planDimStyle.Render(fmt.Sprintf("%d.", step)))
		step++
		if flags.Start {
			fmt.Fprintf(&b, "  %s Start instances and wait for status checks\n", planDimStyle.Render(fmt.Sprintf("%d.", step)))
		}
		fmt.Fprintf(&b, "  %s\n", planDimStyle.Render("Original volumes are left detached, not deleted."))
		b.WriteString("\n")
	}

	return b.String()
}

func renderPlanTable(p *Plan) string {
	var b strings.Builder

	deviceColWidth := 14
	volumeColWidth := 24
	snapshotColWidth := 24
	sizeColWidth := 10
	createdColWidth := 18

	inst := p.Instance()
	b.WriteString(planHeaderStyle.Render(inst.DisplayName()))
	b.WriteString(planDimStyle.Render("  " + inst.AvailabilityZone + ", " + inst.State))
	b.WriteString("\n")

	b.WriteString(planTableHeaderStyle.Render(padRight("Device", deviceColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Current Volume", volumeColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Snapshot", snapshotColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Size", sizeColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Created", createdColWidth)))
	b.WriteString("\n")

	b.WriteString(planDimStyle.Render(strings.Repeat("─", deviceColWidth+volumeColWidth+snapshotColWidth+sizeColWidth+createdColWidth+10)))
	b.WriteString("\n")

	for _, e := range p.Entries() {
		b.WriteString(padRight(truncatePlan(e.Device(), deviceColWidth-2), deviceColWidth+2))
		b.WriteString(padRight(e.SourceVolumeID(), volumeColWidth+2))
		b.WriteString(planRestoreStyle.Render(padRight(e.SnapshotID(), snapshotColWidth+2)))
		b.WriteString(padRight(FormatGiB(e.Snapshot.SizeGiB), sizeColWidth+2))
		b.WriteString(padRight(e.Snapshot.StartTime.UTC().Format("2006-01-02 15:04"), createdColWidth))
		b.WriteString("\n")

		if e.Snapshot.Name != "" || e.Snapshot.Description != "" {
			label := e.Snapshot.Name
			if label == "" {
				label = e.Snapshot.Description
			}
			b.WriteString(planDimStyle.Render("  └─ " + truncatePlan(label, 60)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncatePlan(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
