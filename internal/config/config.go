package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Sprint    SprintConfig    `toml:"sprint"`
	DeepAudit DeepAuditConfig `toml:"deepaudit"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path      string `toml:"path"`
	AuditPath string `toml:"audit_path"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

// SprintConfig holds the tunable timing rules of the sprint engine.
// scoring_mode selects the winner-determination strategy for this deployment:
// "quality" (scout-scored) or "voting" (fellow votes).
type SprintConfig struct {
	StallAfterHours       int    `toml:"stall_after_hours"`
	SubmissionWindowHours int    `toml:"submission_window_hours"`
	NudgeRecentHours      int    `toml:"nudge_recent_hours"`
	FlagWindowHours       int    `toml:"flag_window_hours"`
	ScoringMode           string `toml:"scoring_mode"`
}

type DeepAuditConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8090",
		},
		Database: DatabaseConfig{
			Path:      "data/bridgeit.db",
			AuditPath: "data/audit.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		Sprint: SprintConfig{
			StallAfterHours:       72,
			SubmissionWindowHours: 48,
			NudgeRecentHours:      72,
			FlagWindowHours:       5,
			ScoringMode:           "quality",
		},
		DeepAudit: DeepAuditConfig{
			Enabled:    false,
			TimeoutSec: 30,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Sprint.ScoringMode != "quality" && c.Sprint.ScoringMode != "voting" {
		return fmt.Errorf("invalid scoring_mode %q: must be 'quality' or 'voting'", c.Sprint.ScoringMode)
	}
	if c.Sprint.StallAfterHours <= 0 || c.Sprint.SubmissionWindowHours <= 0 {
		return fmt.Errorf("sprint timing values must be positive")
	}
	return nil
}

// StallAfter returns the staleness threshold as a duration.
func (c *SprintConfig) StallAfter() time.Duration {
	return time.Duration(c.StallAfterHours) * time.Hour
}

// SubmissionWindow returns the post-first-completion grace period.
func (c *SprintConfig) SubmissionWindow() time.Duration {
	return time.Duration(c.SubmissionWindowHours) * time.Hour
}

// NudgeRecent returns how long a nudge counts as recent.
func (c *SprintConfig) NudgeRecent() time.Duration {
	return time.Duration(c.NudgeRecentHours) * time.Hour
}

// FlagWindow returns the lifetime of an eviction-warning flag.
func (c *SprintConfig) FlagWindow() time.Duration {
	return time.Duration(c.FlagWindowHours) * time.Hour
}
