package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cesarempathy/ebs-restore/internal/config"
)

var (
	// Global config file path
	configFile string

	// Loaded configuration
	cfg *config.Config

	// CLI flag values (can override config file and environment)
	profile         string
	region          string
	endpointURL     string
	instanceIDs     []string
	instanceNames   []string
	instanceFile    string
	execute         bool
	stopInstances   bool
	startInstances  bool
	selection       string
	maxConcurrency  int
	waitTimeout     string
	logLevel        string
	logFile         string
	reportFile      string
	planOnly        bool
	assumeYes       bool
	metricsEndpoint string
)

var rootCmd = &cobra.Command{
	Use:   "ebs-restore",
	Short: "Restore EC2 instance volumes from EBS snapshots",
	Long: `A CLI tool to restore the EBS volumes of EC2 instances from existing snapshots.

For each instance it performs the following steps:
1. Resolves the instance and its attached EBS volumes
2. Picks a completed snapshot of the same size for every device
3. Stops the instance (with --stop) and waits until it is stopped
4. Creates one new volume per device from the chosen snapshot
5. Detaches each original volume and attaches the new one on the same device
6. Starts the instance again (with --start)

Nothing changes without --execute. Original volumes are left detached and
are never deleted.

Example:
  ebs-restore restore -n web-1,web-2 --selection latest

  # Stop, restore and start again:
  ebs-restore restore -i i-0123456789abcdef0 --execute --stop --start

  # Using a config file:
  ebs-restore restore -c config.yaml`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore instance volumes from snapshots",
	Long:  `Plan and run the restore of the selected instances' EBS volumes.`,
	RunE:  runRestore,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [filename]",
	Short: "Generate an example configuration file",
	Long:  `Generate an example YAML configuration file with default values.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := "ebs-restore.yaml"
		if len(args) > 0 {
			filename = args[0]
		}
		if err := config.WriteExampleConfig(filename); err != nil {
			return err
		}
		fmt.Printf("✅ Example configuration written to: %s\n", filename)
		return nil
	},
}

func init() {
	// Global config flag available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")

	f := restoreCmd.Flags()
	f.StringVarP(&profile, "profile", "p", "", "AWS shared config profile")
	f.StringVarP(&region, "region", "r", "", "AWS region")
	f.StringVar(&endpointURL, "endpoint-url", "", "Custom EC2 endpoint URL")
	f.StringSliceVarP(&instanceIDs, "instance-ids", "i", nil, "Instance IDs to restore (comma-separated)")
	f.StringSliceVarP(&instanceNames, "instance-names", "n", nil, "Instance Name tags to restore (comma-separated)")
	f.StringVarP(&instanceFile, "instance-file", "f", "", "File with one instance Name tag per line")
	f.BoolVar(&execute, "execute", false, "Make changes (without it only a dry run is performed)")
	f.BoolVar(&stopInstances, "stop", false, "Stop running instances before swapping volumes")
	f.BoolVar(&startInstances, "start", false, "Start instances after the volumes are swapped")
	f.StringVar(&selection, "selection", "", "Snapshot selection: interactive or latest")
	f.IntVar(&maxConcurrency, "concurrency", 0, "Maximum instances restored at the same time")
	f.StringVar(&waitTimeout, "wait-timeout", "", "Timeout for each wait (e.g. 30m)")
	f.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&logFile, "log-file", "", "Write logs to this file")
	f.StringVar(&reportFile, "report", "", "Write a YAML report of the run to this file")
	f.BoolVar(&planOnly, "plan", false, "Show the restore plan and exit without executing")
	f.BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation and run without the interactive UI")
	f.StringVar(&metricsEndpoint, "metrics-endpoint", "", "OTLP gRPC collector address to export metrics to")

	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// loadConfig builds the configuration from defaults, the config file,
// EBS_RESTORE_* variables (.env included) and finally explicitly set flags.
func loadConfig(cmd *cobra.Command) error {
	cfg = config.DefaultConfig()

	if configFile != "" {
		fileCfg, err := config.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("profile") {
		cfg.Profile = profile
	}
	if flags.Changed("region") {
		cfg.Region = region
	}
	if flags.Changed("endpoint-url") {
		cfg.EndpointURL = endpointURL
	}
	if flags.Changed("instance-ids") {
		cfg.InstanceIDs = instanceIDs
	}
	if flags.Changed("instance-names") {
		cfg.InstanceNames = instanceNames
	}
	if flags.Changed("instance-file") {
		cfg.InstanceFile = instanceFile
	}
	if flags.Changed("execute") {
		cfg.Execute = execute
	}
	if flags.Changed("stop") {
		cfg.Stop = stopInstances
	}
	if flags.Changed("start") {
		cfg.Start = startInstances
	}
	if flags.Changed("selection") {
		cfg.Selection = selection
	}
	if flags.Changed("concurrency") {
		cfg.MaxConcurrency = maxConcurrency
	}
	if flags.Changed("wait-timeout") {
		cfg.WaitTimeout = waitTimeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("report") {
		cfg.ReportFile = reportFile
	}
	if flags.Changed("metrics-endpoint") {
		cfg.MetricsEndpoint = metricsEndpoint
	}

	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
