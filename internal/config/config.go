package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultTimeoutMinutes bounds a single msconvert invocation.
	DefaultTimeoutMinutes = 175
	DefaultLogLevel       = "info"
	DefaultConfigName     = "faims2mzml.toml"
)

// Config holds the application configuration.
type Config struct {
	InputPath      string
	OutputDir      string
	RecurseDepth   int
	TimeoutMinutes int
	IgnoreErrors   bool
	Preview        bool
	RenumberScans  bool
	ScanStart      int
	ScanEnd        int
	MSConvertPath  string
	LogLevel       string
	LogFile        string
	HistoryEnabled bool
	HistoryDBPath  string
	NoProgress     bool
	ConfigPath     string
}

type fileConfig struct {
	Convert struct {
		OutputDir      string `toml:"output_dir"`
		TimeoutMinutes int    `toml:"timeout_minutes"`
		RenumberScans  bool   `toml:"renumber_scans"`
		ScanStart      int    `toml:"scan_start"`
		ScanEnd        int    `toml:"scan_end"`
		MSConvertPath  string `toml:"msconvert_path"`
	} `toml:"convert"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	History struct {
		// Pointer so an absent key is distinguishable from enabled = false.
		Enabled *bool  `toml:"enabled"`
		DBPath  string `toml:"db_path"`
	} `toml:"history"`
}

// LoadConfig loads configuration from file, environment variables, and defaults.
// Command-line flags are applied on top by the CLI layer.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TimeoutMinutes: DefaultTimeoutMinutes,
		LogLevel:       DefaultLogLevel,
		HistoryEnabled: true,
	}

	configPath := DefaultConfigName
	if envPath := os.Getenv("FAIMS2MZML_CONFIG"); envPath != "" {
		configPath = envPath
	}

	if _, err := os.Stat(configPath); err == nil {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var parsed fileConfig
		if err := toml.Unmarshal(fileData, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}

		if parsed.Convert.OutputDir != "" {
			cfg.OutputDir = parsed.Convert.OutputDir
		}
		if parsed.Convert.TimeoutMinutes != 0 {
			cfg.TimeoutMinutes = parsed.Convert.TimeoutMinutes
		}
		cfg.RenumberScans = parsed.Convert.RenumberScans
		if parsed.Convert.ScanStart > 0 {
			cfg.ScanStart = parsed.Convert.ScanStart
		}
		if parsed.Convert.ScanEnd > 0 {
			cfg.ScanEnd = parsed.Convert.ScanEnd
		}
		if parsed.Convert.MSConvertPath != "" {
			cfg.MSConvertPath = parsed.Convert.MSConvertPath
		}
		if parsed.Logging.Level != "" {
			cfg.LogLevel = parsed.Logging.Level
		}
		if parsed.Logging.File != "" {
			cfg.LogFile = parsed.Logging.File
		}
		if parsed.History.Enabled != nil {
			cfg.HistoryEnabled = *parsed.History.Enabled
		}
		if parsed.History.DBPath != "" {
			cfg.HistoryDBPath = parsed.History.DBPath
		}
		cfg.ConfigPath = configPath
	}

	// Apply environment variable overrides
	if outputDir := os.Getenv("FAIMS2MZML_OUTPUT_DIR"); outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if timeoutStr := os.Getenv("FAIMS2MZML_TIMEOUT_MINUTES"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.TimeoutMinutes = timeout
		}
	}
	if level := os.Getenv("FAIMS2MZML_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if logFile := os.Getenv("FAIMS2MZML_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if msconvert := os.Getenv("FAIMS2MZML_MSCONVERT_PATH"); msconvert != "" {
		cfg.MSConvertPath = msconvert
	}
	if history := os.Getenv("FAIMS2MZML_HISTORY_ENABLED"); history != "" {
		cfg.HistoryEnabled = history == "true" || history == "1"
	}
	if dbPath := os.Getenv("FAIMS2MZML_HISTORY_DB"); dbPath != "" {
		cfg.HistoryDBPath = dbPath
	}

	return cfg, nil
}

// ResolveHistoryDBPath returns the history database path, defaulting to a
// fixed name inside the output directory.
func (c *Config) ResolveHistoryDBPath() string {
	if c.HistoryDBPath != "" {
		return c.HistoryDBPath
	}
	dir := c.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "faims2mzml_history.sqlite3")
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputPath) == "" {
		return fmt.Errorf("input path is empty")
	}
	if c.RecurseDepth < 0 {
		return fmt.Errorf("recurse depth cannot be negative")
	}
	if c.ScanStart < 0 || c.ScanEnd < 0 {
		return fmt.Errorf("scan bounds cannot be negative")
	}
	if c.ScanStart > 0 && c.ScanEnd > 0 && c.ScanEnd < c.ScanStart {
		return fmt.Errorf("scan end %d is below scan start %d", c.ScanEnd, c.ScanStart)
	}
	if c.OutputDir != "" {
		if info, err := os.Stat(c.OutputDir); err == nil && !info.IsDir() {
			return fmt.Errorf("output path %s is not a directory", c.OutputDir)
		}
	}
	return nil
}
