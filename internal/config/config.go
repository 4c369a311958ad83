// Package config handles YAML configuration loading and validation
// for the ebs-restore tool.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cesarempathy/ebs-restore/internal/logger"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "EBS_RESTORE_"

// Snapshot selection modes
const (
	SelectionInteractive = "interactive"
	SelectionLatest      = "latest"
)

// Config represents the YAML configuration file structure
type Config struct {
	Profile     string `yaml:"profile,omitempty"`
	Region      string `yaml:"region,omitempty"`
	EndpointURL string `yaml:"endpointURL,omitempty"`

	InstanceIDs   []string `yaml:"instanceIDs,omitempty"`
	InstanceNames []string `yaml:"instanceNames,omitempty"`
	InstanceFile  string   `yaml:"instanceFile,omitempty"`

	Execute bool `yaml:"execute"`
	Stop    bool `yaml:"stop"`
	Start   bool `yaml:"start"`

	Selection      string `yaml:"selection"`
	MaxConcurrency int    `yaml:"maxConcurrency"`
	WaitTimeout    string `yaml:"waitTimeout"`

	LogLevel   string `yaml:"logLevel"`
	LogFile    string `yaml:"logFile,omitempty"`
	ReportFile string `yaml:"reportFile,omitempty"`

	// MetricsEndpoint is an OTLP gRPC collector address. Metrics are only exported when set.
	MetricsEndpoint string `yaml:"metricsEndpoint,omitempty"`
	MetricsInsecure bool   `yaml:"metricsInsecure,omitempty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Execute:        false, // plan only unless asked
		Stop:           false,
		Start:          false,
		Selection:      SelectionInteractive,
		MaxConcurrency: 5,
		WaitTimeout:    "1h",
		LogLevel:       "info",
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from CLI flag, user-controlled input is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from EBS_RESTORE_* variables read through getenv.
// Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = splitList(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("PROFILE", &c.Profile)
	str("REGION", &c.Region)
	str("ENDPOINT_URL", &c.EndpointURL)
	list("INSTANCE_IDS", &c.InstanceIDs)
	list("INSTANCE_NAMES", &c.InstanceNames)
	str("INSTANCE_FILE", &c.InstanceFile)
	str("SELECTION", &c.Selection)
	str("WAIT_TIMEOUT", &c.WaitTimeout)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	str("REPORT_FILE", &c.ReportFile)
	str("METRICS_ENDPOINT", &c.MetricsEndpoint)

	if err := boolean("EXECUTE", &c.Execute); err != nil {
		return err
	}
	if err := boolean("STOP", &c.Stop); err != nil {
		return err
	}
	if err := boolean("START", &c.Start); err != nil {
		return err
	}
	if err := boolean("METRICS_INSECURE", &c.MetricsInsecure); err != nil {
		return err
	}

	if v := getenv(EnvPrefix + "MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONCURRENCY: %w", EnvPrefix, err)
		}
		c.MaxConcurrency = n
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.InstanceIDs) == 0 && len(c.InstanceNames) == 0 && c.InstanceFile == "" {
		return fmt.Errorf("at least one instance id, instance name or instance file is required")
	}
	if c.Selection != SelectionInteractive && c.Selection != SelectionLatest {
		return fmt.Errorf("selection must be %q or %q, got %q", SelectionInteractive, SelectionLatest, c.Selection)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("maxConcurrency must be at least 1")
	}
	if _, err := c.WaitTimeoutDuration(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// WaitTimeoutDuration parses WaitTimeout.
func (c *Config) WaitTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid waitTimeout %q: %w", c.WaitTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("waitTimeout must be positive, got %s", c.WaitTimeout)
	}
	return d, nil
}

// LoadInstanceFile reads instance names, one per line. Blank lines and lines
// starting with # are skipped.
func LoadInstanceFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to open instance file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instance file: %w", err)
	}
	return names, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := &Config{
		Region:         "eu-west-1",
		InstanceNames:  []string{"web-1", "web-2"},
		Execute:        false,
		Stop:           true,
		Start:          true,
		Selection:      SelectionInteractive,
		MaxConcurrency: 5,
		WaitTimeout:    "1h",
		LogLevel:       "info",
		ReportFile:     "ebs-restore-report.yaml",
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	header := `# EBS Restore Configuration
#
# Restores the EBS volumes of EC2 instances from existing snapshots.
# Nothing is changed unless execute is true. Original volumes are left
# detached and are never deleted.
#
# Values can be overridden by EBS_RESTORE_* environment variables (also read
# from a .env file) and by CLI flags.

# profile: my-profile                 # Optional: shared config profile
# endpointURL: http://localhost:4566  # Optional: custom EC2 endpoint
# instanceIDs: [i-0123456789abcdef0]
# instanceFile: instances.txt          # One Name tag per line, # for comments
# metricsEndpoint: localhost:4317      # Optional: export metrics to an OTLP collector
# metricsInsecure: true

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0600); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}
