// Package cmd implements the CLI commands for the ebs-restore tool.
// It provides commands for restoring EC2 instance volumes from EBS snapshots.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nrednav/cuid2"
	"github.com/spf13/cobra"

	"github.com/cesarempathy/ebs-restore/internal/aws"
	"github.com/cesarempathy/ebs-restore/internal/config"
	"github.com/cesarempathy/ebs-restore/internal/logger"
	"github.com/cesarempathy/ebs-restore/internal/otel"
	"github.com/cesarempathy/ebs-restore/internal/restore"
	"github.com/cesarempathy/ebs-restore/internal/ui"
)

// Console output styles
var (
	cliHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	cliSuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	cliWarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	cliErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	cliInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	cliDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	cliValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	cliBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1).
			MarginTop(1)

	cliLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Width(16)
)

// errRestoreFailed is returned after the summary was printed so the process exits with status 1.
var errRestoreFailed = errors.New("one or more restores failed")

func runRestore(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, closeLog, err := setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	ctx = logger.AddToContext(ctx, log)

	runID := cuid2.Generate()
	waitTimeout, _ := cfg.WaitTimeoutDuration()

	printHeaderInfo(runID)

	criteria, err := buildCriteria()
	if err != nil {
		return err
	}

	ec2Client, err := aws.NewEC2Client(ctx, aws.Options{
		Profile:     cfg.Profile,
		Region:      cfg.Region,
		EndpointURL: cfg.EndpointURL,
		WaitTimeout: waitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create AWS EC2 client: %w", err)
	}

	instances, err := restore.FindInstances(ctx, ec2Client, criteria)
	if err != nil {
		return fmt.Errorf("failed to resolve instances: %w", err)
	}
	fmt.Println(buildDiscoveryBox(instances, criteria))

	metrics, shutdownMetrics, err := setupMetrics(ctx, runID)
	if err != nil {
		return err
	}
	defer func() {
		// ctx may already be cancelled by a signal; the final export gets its own deadline.
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			log.Warn("failed to flush metrics", "error", err)
		}
	}()

	r := restore.New(restore.Config{
		Flags:          restore.Flags{Stop: cfg.Stop, Start: cfg.Start, Execute: cfg.Execute},
		MaxConcurrency: cfg.MaxConcurrency,
		WaitTimeout:    waitTimeout,
		RunID:          runID,
	}, ec2Client, restore.WithMetrics(metrics))

	jobs, planFailures := planInstances(ctx, r, instances)
	if len(planFailures) > 0 {
		fmt.Println(buildPlanFailuresBox(planFailures))
	}

	if planOnly || len(jobs) == 0 {
		return handlePlanMode(r, jobs, planFailures)
	}

	var results []*restore.Result
	if assumeYes {
		results = runHeadless(ctx, r, jobs)
	} else {
		results, err = runRestoreUI(ctx, r, jobs)
		if err != nil {
			return err
		}
		if results == nil {
			// cancelled before confirming; instances that failed to plan still count
			return reportPlanFailures(cfg.ReportFile, runID, planFailures)
		}
	}

	results = append(planFailures, results...)
	if err := writeReport(cfg.ReportFile, runID, results); err != nil {
		return err
	}
	if restore.HasFailures(results) {
		return errRestoreFailed
	}
	return nil
}

// setupLogger sends logs to the configured file. Without one, logs go to stderr
// in headless runs and are dropped while the terminal UI owns the screen.
func setupLogger() (*slog.Logger, func(), error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // Path comes from CLI flag
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return logger.New(f, level), func() { _ = f.Close() }, nil
	}

	var w io.Writer = io.Discard
	if assumeYes && cfg.Selection == config.SelectionLatest {
		w = os.Stderr
	}
	return logger.New(w, level), func() {}, nil
}

// setupMetrics creates the restore instruments. They are exported over OTLP
// only when a metrics endpoint is configured.
func setupMetrics(ctx context.Context, runID string) (*restore.Metrics, func(context.Context) error, error) {
	provider, shutdown, err := otel.Init(ctx, otel.Config{
		Endpoint:    cfg.MetricsEndpoint,
		Insecure:    cfg.MetricsInsecure,
		ServiceName: "ebs-restore",
		Version:     rootCmd.Version,
		RunID:       runID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics, err := restore.NewMetrics(provider.Meter)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	return metrics, shutdown, nil
}

// buildCriteria merges instance IDs, names and the names listed in the instance file.
func buildCriteria() (restore.Criteria, error) {
	names := append([]string(nil), cfg.InstanceNames...)
	if cfg.InstanceFile != "" {
		fromFile, err := config.LoadInstanceFile(cfg.InstanceFile)
		if err != nil {
			return restore.Criteria{}, err
		}
		names = append(names, fromFile...)
	}
	criteria := restore.Criteria{InstanceIDs: cfg.InstanceIDs, Names: names}
	if criteria.IsEmpty() {
		return criteria, fmt.Errorf("no instances selected")
	}
	return criteria, nil
}

// planInstances builds a plan per instance, one at a time so the interactive
// picker never competes for the terminal. Failed plans are returned as results.
func planInstances(ctx context.Context, r *restore.Restorer, instances []aws.Instance) ([]restore.Job, []*restore.Result) {
	var selector restore.Selector = restore.LatestSelector{}
	if cfg.Selection == config.SelectionInteractive {
		selector = ui.NewPrompt(nil, nil)
	}

	fmt.Println(cliInfoStyle.Render("\n🔍 Building restore plan..."))

	var jobs []restore.Job
	var failures []*restore.Result
	for _, inst := range instances {
		plan, err := r.PlanRestore(ctx, inst, selector)
		if err != nil {
			failures = append(failures, &restore.Result{Instance: inst, Err: err})
			if restore.IsKind(err, restore.KindSelectionAborted) && errors.Is(err, restore.ErrSelectionAborted) {
				fmt.Println(cliWarningStyle.Render(fmt.Sprintf("⚠️  Selection aborted for %s, skipping", inst.DisplayName())))
			}
			continue
		}
		jobs = append(jobs, restore.Job{Instance: inst, Plan: plan})
	}
	return jobs, failures
}

// handlePlanMode prints the plan and exits without touching any instance.
func handlePlanMode(r *restore.Restorer, jobs []restore.Job, planFailures []*restore.Result) error {
	if len(jobs) > 0 {
		fmt.Print(restore.FormatPlan(plansOf(jobs), r.GetConfig().Flags))
	}
	if len(planFailures) > 0 {
		return reportPlanFailures(cfg.ReportFile, r.GetConfig().RunID, planFailures)
	}
	fmt.Println(cliDimStyle.Render("Run without --plan flag to execute the restore."))
	fmt.Println()
	return nil
}

// runHeadless runs every job without the terminal UI.
func runHeadless(ctx context.Context, r *restore.Restorer, jobs []restore.Job) []*restore.Result {
	fmt.Print(restore.FormatPlan(plansOf(jobs), r.GetConfig().Flags))
	fmt.Println(cliInfoStyle.Render("🚀 Running restore..."))

	results := r.Run(ctx, jobs)
	ui.WriteSummary(os.Stdout, r)
	return results
}

// runRestoreUI creates and runs the Bubble Tea UI. It returns nil results when the
// operator cancelled before confirming.
func runRestoreUI(ctx context.Context, r *restore.Restorer, jobs []restore.Job) ([]*restore.Result, error) {
	model := ui.NewModel(ctx, r, jobs)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("UI error: %w", err)
	}

	fm, ok := finalModel.(ui.Model)
	if !ok || !fm.Started() {
		fmt.Println(cliDimStyle.Render("Restore cancelled, no changes were made."))
		return nil, nil
	}

	// Quitting mid-run cancels the run context; wait for in-flight calls to return.
	if r.Running() {
		fmt.Println(cliWarningStyle.Render("⏳ Waiting for in-flight operations to stop..."))
		<-r.Done()
	}

	fm.PrintSummary(os.Stdout)
	return r.Results(), nil
}

// reportPlanFailures writes the report for instances that never got a plan and
// returns an error when there are any.
func reportPlanFailures(path, runID string, planFailures []*restore.Result) error {
	if len(planFailures) == 0 {
		return nil
	}
	if err := writeReport(path, runID, planFailures); err != nil {
		return err
	}
	return fmt.Errorf("planning failed for %d instance(s)", len(planFailures))
}

func writeReport(path, runID string, results []*restore.Result) error {
	if path == "" {
		return nil
	}
	if err := restore.WriteReport(path, restore.BuildReport(runID, results)); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", cliDimStyle.Render("📝 Report:"), path)
	return nil
}

func plansOf(jobs []restore.Job) []*restore.Plan {
	plans := make([]*restore.Plan, len(jobs))
	for i, job := range jobs {
		plans[i] = job.Plan
	}
	return plans
}

// printHeaderInfo prints where the run reads its settings from
func printHeaderInfo(runID string) {
	if configFile != "" {
		fmt.Printf("%s %s\n", cliDimStyle.Render("📄 Config:"), configFile)
	}
	if cfg.Profile != "" {
		fmt.Printf("%s %s\n", cliDimStyle.Render("👤 Profile:"), cfg.Profile)
	}
	if cfg.Region != "" {
		fmt.Printf("%s %s\n", cliDimStyle.Render("🌍 Region:"), cfg.Region)
	}
	fmt.Printf("%s %s\n", cliDimStyle.Render("🔖 Run ID:"), runID)
}

// buildDiscoveryBox creates a styled box for the resolved instances
func buildDiscoveryBox(instances []aws.Instance, criteria restore.Criteria) string {
	var content strings.Builder

	content.WriteString(cliHeaderStyle.Render("Instance Discovery"))
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("  %s %s\n",
		cliLabelStyle.Render("Searched for:"),
		cliDimStyle.Render(criteria.String())))
	content.WriteString("\n")

	for _, inst := range instances {
		ebs := 0
		for _, att := range inst.Attachments {
			if att.IsEBS() {
				ebs++
			}
		}
		stateStyle := cliWarningStyle
		if inst.State == aws.InstanceStateStopped {
			stateStyle = cliSuccessStyle
		}
		content.WriteString(fmt.Sprintf("  %s %s %s %s\n",
			cliInfoStyle.Render("◆"),
			cliValueStyle.Render(inst.DisplayName()),
			stateStyle.Render(inst.State),
			cliDimStyle.Render(fmt.Sprintf("(%s, %d EBS volume(s))", inst.AvailabilityZone, ebs))))
	}

	missing := missingNames(instances, criteria)
	for _, name := range missing {
		content.WriteString(fmt.Sprintf("  %s %s\n",
			cliWarningStyle.Render("⚠"),
			cliDimStyle.Render(name+": no matching instance")))
	}

	content.WriteString(fmt.Sprintf("\n  %s %s",
		cliLabelStyle.Render("Total:"),
		cliHeaderStyle.Render(fmt.Sprintf("%d instance(s)", len(instances)))))

	return cliBoxStyle.Render(content.String())
}

// missingNames lists requested IDs and names that matched no instance.
func missingNames(instances []aws.Instance, criteria restore.Criteria) []string {
	seen := make(map[string]bool, len(instances)*2)
	for _, inst := range instances {
		seen[inst.InstanceID] = true
		if inst.Name != "" {
			seen[inst.Name] = true
		}
	}
	var missing []string
	for _, want := range append(append([]string(nil), criteria.InstanceIDs...), criteria.Names...) {
		if !seen[want] {
			missing = append(missing, want)
			seen[want] = true
		}
	}
	return missing
}

// buildPlanFailuresBox creates a styled box for instances that could not be planned
func buildPlanFailuresBox(failures []*restore.Result) string {
	var content strings.Builder

	content.WriteString(cliHeaderStyle.Render("Planning Failures"))
	content.WriteString("\n")

	for _, f := range failures {
		content.WriteString(fmt.Sprintf("\n  %s %s\n",
			cliErrorStyle.Render("✗"),
			cliValueStyle.Render(f.Instance.DisplayName())))
		content.WriteString(fmt.Sprintf("    %s\n", cliDimStyle.Render(f.Err.Error())))
	}

	content.WriteString(fmt.Sprintf("\n  %s %s",
		cliWarningStyle.Render("⚠"),
		"These instances will not be restored"))

	return cliBoxStyle.Render(content.String())
}
