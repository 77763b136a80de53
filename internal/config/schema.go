// Package config provides configuration loading and validation for gardend.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [daemon]: Data directory, program document path, poll period
//   - [http]: HTTP API listen address
//   - [logging]: Logging level, format, and output
//   - [telegram]: Notification delivery settings
//   - [report]: Nightly usage report settings
//   - [hardware]: Hardware backend selection
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: token = "${GARDEND_TG_TOKEN}".
package config

import "path/filepath"

// Config represents the main daemon configuration.
type Config struct {
	Daemon   DaemonConfig   `toml:"daemon"`
	HTTP     HTTPConfig     `toml:"http"`
	Logging  LoggingConfig  `toml:"logging"`
	Telegram TelegramConfig `toml:"telegram"`
	Report   ReportConfig   `toml:"report"`
	Hardware HardwareConfig `toml:"hardware"`
}

// DaemonConfig holds paths and timing of the main loop.
type DaemonConfig struct {
	// DataDir holds the program document, the CSV run log and the pump log.
	DataDir string `toml:"data_dir"`
	// ProgramFile overrides the program document path. Defaults to
	// <data_dir>/gardenCfg.json.
	ProgramFile string `toml:"program_file"`
	// PollPeriodSeconds is the hardware polling period of the orchestrator.
	PollPeriodSeconds int `toml:"poll_period_seconds"`
	// ReloadDebounceMillis is the quiet period before a changed program
	// document is re-read.
	ReloadDebounceMillis int `toml:"reload_debounce_millis"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// TelegramConfig holds notification delivery settings.
type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
}

// ReportConfig holds the nightly usage report settings.
type ReportConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a standard 5-field cron expression.
	Schedule string `toml:"schedule"`
}

// HardwareConfig selects the hardware backend.
type HardwareConfig struct {
	// Mode is "sim" (in-process simulator) or "none" (no sink attached).
	Mode string `toml:"mode"`
	// FlowLitersPerMinute is the simulated flow rate while zones run.
	FlowLitersPerMinute float64 `toml:"flow_liters_per_minute"`
}

// ProgramPath returns the effective program document path.
func (c *Config) ProgramPath() string {
	if c.Daemon.ProgramFile != "" {
		return c.Daemon.ProgramFile
	}
	return filepath.Join(c.Daemon.DataDir, "gardenCfg.json")
}

// CsvPath returns the run log CSV path.
func (c *Config) CsvPath() string {
	return filepath.Join(c.Daemon.DataDir, "garden.csv")
}
