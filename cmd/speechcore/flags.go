package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	InputPath       string
	InputKind       string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	return parseFlagSet(flag.CommandLine, os.Args[1:])
}

func parseFlagSet(fs *flag.FlagSet, args []string) *CLIConfig {
	cfg := &CLIConfig{}

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("SPEECHCORE_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: SPEECHCORE_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("SPEECHCORE_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: SPEECHCORE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SPEECHCORE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SPEECHCORE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SPEECHCORE_LOG_FORMAT", "text"),
		"Log format: json, text (env: SPEECHCORE_LOG_FORMAT)")

	fs.StringVar(&cfg.InputPath, "input", "",
		"Audio file to play, overrides input.path")

	fs.StringVar(&cfg.InputKind, "kind", "",
		"Input kind: wav, mp3, raw; overrides input.kind")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("SPEECHCORE_METRICS_PORT", 0),
		"Serve Prometheus metrics on this port, 0 keeps the config value (env: SPEECHCORE_METRICS_PORT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SPEECHCORE_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: SPEECHCORE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = printDetailedHelp

	_ = fs.Parse(args)

	if cfg.InputPath == "" && fs.NArg() > 0 {
		cfg.InputPath = fs.Arg(0)
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - audio pump and processor host

Usage: %s [options] [file]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Meter a WAV file
  %s speech.wav

  # Play an MP3 in real time with metrics on :9090
  %s --kind=mp3 --metrics-port=9090 speech.mp3

  # Run from a config file with environment overrides
  export SPEECHCORE_INPUT_REAL_TIME_PERCENTAGE=100
  %s --config=speechcore.yaml

  # Validate configuration only
  %s --config=speechcore.yaml --validate

Environment variables may also be placed in a .env file in the working directory.

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
