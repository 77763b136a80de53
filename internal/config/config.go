package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file, applies defaults and expands
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Daemon.DataDir == "" {
		cfg.Daemon.DataDir = "./data"
	}
	if cfg.Daemon.PollPeriodSeconds <= 0 {
		cfg.Daemon.PollPeriodSeconds = 3
	}
	if cfg.Daemon.ReloadDebounceMillis <= 0 {
		cfg.Daemon.ReloadDebounceMillis = 500
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = "127.0.0.1:8480"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Report.Schedule == "" {
		cfg.Report.Schedule = "55 23 * * *"
	}
	if cfg.Hardware.Mode == "" {
		cfg.Hardware.Mode = "none"
	}
	if cfg.Hardware.FlowLitersPerMinute <= 0 {
		cfg.Hardware.FlowLitersPerMinute = 20
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} references in string
// fields that may carry secrets or host-specific values.
func expandEnvVars(cfg *Config) {
	cfg.Telegram.Token = expandString(cfg.Telegram.Token)
	cfg.Daemon.DataDir = expandString(cfg.Daemon.DataDir)
	cfg.Daemon.ProgramFile = expandString(cfg.Daemon.ProgramFile)
	cfg.HTTP.Listen = expandString(cfg.HTTP.Listen)
	cfg.Logging.Output = expandString(cfg.Logging.Output)
}

func expandString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok {
			return v
		}
		return m[2]
	})
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Daemon.DataDir == "" {
		errors = append(errors, fmt.Errorf("daemon.data_dir is required"))
	}
	if c.Daemon.PollPeriodSeconds <= 0 {
		errors = append(errors, fmt.Errorf("daemon.poll_period_seconds must be positive"))
	}

	switch strings.ToLower(c.Hardware.Mode) {
	case "sim", "none":
	default:
		errors = append(errors, fmt.Errorf("hardware.mode must be 'sim' or 'none', got %q", c.Hardware.Mode))
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errors = append(errors, fmt.Errorf("telegram.token is required when telegram.enabled"))
		}
		if c.Telegram.ChatID == 0 {
			errors = append(errors, fmt.Errorf("telegram.chat_id is required when telegram.enabled"))
		}
	}

	return errors
}

// LoadEnvOptional loads environment variables from a .env file if it exists.
// Lines are KEY=VALUE; empty lines and #-comments are skipped.
func LoadEnvOptional(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key != "" {
			os.Setenv(key, strings.TrimSpace(parts[1]))
		}
	}
	return nil
}
