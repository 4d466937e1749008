package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mowgli42/bookish-train/config"
)

// validateCmd validates a config file without contacting the catcher.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an edgedash configuration file without contacting the catcher.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  edgedash validate -c config.yaml
  edgedash validate --config /etc/edgedash/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := config.BuildOptions(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	catcherURL := cfg.CatcherURL
	if catcherURL == "" {
		catcherURL = "(from $CATCHER_URL or default)"
	}
	policy := cfg.OrderPolicy
	if policy == "" {
		policy = "latest_issued"
	}

	overrides := make([]string, 0, len(cfg.Resources))
	for name, rc := range cfg.Resources {
		if rc.Interval != 0 {
			overrides = append(overrides, fmt.Sprintf("%s=%s", name, rc.Interval.Duration()))
		}
	}
	sort.Strings(overrides)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Catcher:          %s\n", catcherURL)
	fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	fmt.Fprintf(out, "  Refresh interval: %s\n", cfg.RefreshInterval.Duration())
	fmt.Fprintf(out, "  Order policy:     %s\n", policy)
	fmt.Fprintf(out, "  Projection days:  %d\n", cfg.Projections.Days)
	if len(overrides) > 0 {
		fmt.Fprintf(out, "  Overrides:        %s\n", strings.Join(overrides, ", "))
	}

	return nil
}
