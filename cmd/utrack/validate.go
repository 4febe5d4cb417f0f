package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/utrack/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the utrack configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults())
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := config.ValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Process
	_, _ = cyan.Println("\n[process]")
	dumpField("  name", cfg.Process.Name, defaultCfg.Process.Name, yellow, green)
	dumpField("  poll_interval", cfg.Process.PollInterval, defaultCfg.Process.PollInterval, yellow, green)

	// Tracking
	_, _ = cyan.Println("\n[tracking]")
	dumpField("  min_session_duration", cfg.Tracking.MinSessionDuration, defaultCfg.Tracking.MinSessionDuration, yellow, green)
	dumpField("  repeat", cfg.Tracking.Repeat, defaultCfg.Tracking.Repeat, yellow, green)

	// Usage log
	_, _ = cyan.Println("\n[log]")
	dumpField("  path", cfg.Log.Path, defaultCfg.Log.Path, yellow, green)
	dumpField("  session_label", cfg.Log.SessionLabel, defaultCfg.Log.SessionLabel, yellow, green)
	dumpField("  time_layout", cfg.Log.TimeLayout, defaultCfg.Log.TimeLayout, yellow, green)

	// Title
	_, _ = cyan.Println("\n[title]")
	dumpField("  enabled", cfg.Title.Enabled, defaultCfg.Title.Enabled, yellow, green)
	dumpField("  interval", cfg.Title.Interval, defaultCfg.Title.Interval, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	// Metrics
	_, _ = cyan.Println("\n[metrics]")
	dumpField("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled, yellow, green)
	dumpField("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress, yellow, green)
	dumpField("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port, yellow, green)

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}
