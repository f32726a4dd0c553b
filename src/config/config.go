// Package config loads the run configuration from a .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lost-woods/nistcheck/src/rng"
)

// ErrUsage marks errors caused by the configuration rather than the run.
var ErrUsage = errors.New("invalid configuration")

type Config struct {
	// Input is the raw byte file under test.
	Input  string
	Serial rng.SerialConfig

	BitsPerBlock int
	// Blocks to process; 0 derives the count from the input size.
	Blocks     int
	ReportPath string
	// TestsFile is an optional TOML file selecting tests and parameters.
	TestsFile string

	// ListenAddr enables the HTTP monitor when set.
	ListenAddr string
	APIKey     string
	HistoryDB  string

	PollInterval     time.Duration
	ProgressInterval time.Duration
	LogDev           bool
}

// Load reads .env (if present), then the environment. Malformed values are
// errors, not silently replaced by defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	serial, err := rng.SerialConfigFromEnv()
	if err != nil {
		return nil, err
	}

	bits, bitsErr := getEnvIntOrDefault("BITS_PER_BLOCK", 1_000_000)
	blocks, blocksErr := getEnvIntOrDefault("BLOCKS", 0)
	poll, pollErr := getEnvMillisOrDefault("POLL_INTERVAL_MS", 100*time.Millisecond)
	progress, progressErr := getEnvMillisOrDefault("PROGRESS_INTERVAL_MS", time.Second)
	logDev, logDevErr := getEnvBoolOrDefault("LOG_DEV", false)
	if err := errors.Join(bitsErr, blocksErr, pollErr, progressErr, logDevErr); err != nil {
		return nil, err
	}

	return &Config{
		Input:            getEnvOrDefault("INPUT_PATH", ""),
		Serial:           serial,
		BitsPerBlock:     bits,
		Blocks:           blocks,
		ReportPath:       getEnvOrDefault("REPORT_PATH", ""),
		TestsFile:        getEnvOrDefault("TESTS_CONFIG", ""),
		ListenAddr:       getEnvOrDefault("LISTEN_ADDR", ""),
		APIKey:           getEnvOrDefault("API_KEY", ""),
		HistoryDB:        getEnvOrDefault("HISTORY_DB", ""),
		PollInterval:     poll,
		ProgressInterval: progress,
		LogDev:           logDev,
	}, nil
}

// NewCommand builds the root command. The environment supplies the flag
// defaults; run receives the validated configuration.
func NewCommand(run func(cmd *cobra.Command, cfg *Config) error) (*cobra.Command, error) {
	cfg, err := Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	cmd := &cobra.Command{
		Use:   "nistcheck [input]",
		Short: "Run the NIST randomness test battery over a bit stream",
		Long: `Split a raw byte file (or a serial RNG stream) into fixed-size blocks,
run the enabled statistical tests on every block and report, per sub-test,
the p-value histogram, its uniformity and the pass proportion.

The report is printed and written to <input>.txt. With --listen the run is
monitored and controlled over HTTP instead.

Example: nistcheck --bits 1000000 --blocks 100 data.bin`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w: %w", ErrUsage, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Input = args[0]
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %w", ErrUsage, err)
			}
			return run(cmd, cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	flags := cmd.Flags()
	flags.StringVar(&cfg.Input, "input", cfg.Input, "raw byte file to test")
	flags.StringVar(&cfg.Serial.Device, "serial", cfg.Serial.Device, "serial device to read instead of a file")
	flags.IntVar(&cfg.Serial.Baud, "baud", cfg.Serial.Baud, "serial baud rate")
	flags.IntVar(&cfg.BitsPerBlock, "bits", cfg.BitsPerBlock, "bits per block")
	flags.IntVar(&cfg.Blocks, "blocks", cfg.Blocks, "number of blocks (0 = whole file)")
	flags.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "report path (default <input>.txt)")
	flags.StringVar(&cfg.TestsFile, "tests", cfg.TestsFile, "TOML file selecting tests and parameters")
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address of the HTTP monitor, e.g. :8080")
	flags.StringVar(&cfg.HistoryDB, "history", cfg.HistoryDB, "SQLite database recording completed runs")
	flags.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "completion poll interval")
	flags.DurationVar(&cfg.ProgressInterval, "progress", cfg.ProgressInterval, "progress log interval")
	flags.BoolVar(&cfg.LogDev, "dev", cfg.LogDev, "human-readable development logging")

	return cmd, nil
}

func (c *Config) Validate() error {
	if c.BitsPerBlock < 8 {
		return fmt.Errorf("bits per block must be at least 8, got %d", c.BitsPerBlock)
	}
	if c.Blocks < 0 {
		return fmt.Errorf("block count must not be negative, got %d", c.Blocks)
	}
	if c.Input == "" && c.Serial.Device == "" && c.ListenAddr == "" {
		return errors.New("an input path, a serial device or a listen address is required")
	}
	if c.Serial.Device != "" && c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid serial baud rate %d", c.Serial.Baud)
	}
	if c.PollInterval <= 0 || c.ProgressInterval <= 0 {
		return errors.New("poll and progress intervals must be positive")
	}
	return nil
}

// HasSource reports whether a run should start right away.
func (c *Config) HasSource() bool {
	return c.Input != "" || c.Serial.Device != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return intValue, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, value)
	}
	return boolValue, nil
}

func getEnvMillisOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q (positive milliseconds expected)", key, value)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
