package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration values for the dose scheduler daemon.
type Config struct {
	Driver        string        `yaml:"driver"`
	SQLiteDSN     string        `yaml:"sqlite_dsn"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	Timezone      string        `yaml:"timezone"`
	HorizonDays   int           `yaml:"horizon_days"`
	ReconcileSpec string        `yaml:"reconcile_spec"`
	SweepLookback time.Duration `yaml:"sweep_lookback"`
	SweepGrace    time.Duration `yaml:"sweep_grace"`
	FeedPath      string        `yaml:"feed_path"`
	LogLevel      string        `yaml:"log_level"`
}

// Load resolves configuration from an optional YAML file named by
// DOSED_CONFIG_FILE, then applies environment overrides on top.
//
// The loader applies sensible defaults for optional fields while validating
// values and reporting every offending entry in one pass.
func Load() (Config, error) {
	cfg := Config{
		Driver:        "sqlite",
		SQLiteDSN:     "file:dosed.db?_foreign_keys=on",
		Timezone:      "UTC",
		HorizonDays:   7,
		ReconcileSpec: "@every 15m",
		SweepLookback: 72 * time.Hour,
		SweepGrace:    30 * time.Minute,
		LogLevel:      "info",
	}

	if path := strings.TrimSpace(os.Getenv("DOSED_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	invalid := make([]string, 0, 2)

	if driver := strings.TrimSpace(os.Getenv("DOSED_DRIVER")); driver != "" {
		cfg.Driver = driver
	}
	if dsn := strings.TrimSpace(os.Getenv("DOSED_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if dsn := strings.TrimSpace(os.Getenv("DOSED_POSTGRES_DSN")); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if tz := strings.TrimSpace(os.Getenv("DOSED_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	if spec := strings.TrimSpace(os.Getenv("DOSED_RECONCILE_SPEC")); spec != "" {
		cfg.ReconcileSpec = spec
	}
	if path := strings.TrimSpace(os.Getenv("DOSED_FEED_PATH")); path != "" {
		cfg.FeedPath = path
	}
	if level := strings.TrimSpace(os.Getenv("DOSED_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("DOSED_HORIZON_DAYS")); value != "" {
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			invalid = append(invalid, "DOSED_HORIZON_DAYS")
		} else {
			cfg.HorizonDays = days
		}
	}

	if value := strings.TrimSpace(os.Getenv("DOSED_SWEEP_LOOKBACK")); value != "" {
		lookback, err := time.ParseDuration(value)
		if err != nil || lookback <= 0 {
			invalid = append(invalid, "DOSED_SWEEP_LOOKBACK")
		} else {
			cfg.SweepLookback = lookback
		}
	}

	if value := strings.TrimSpace(os.Getenv("DOSED_SWEEP_GRACE")); value != "" {
		grace, err := time.ParseDuration(value)
		if err != nil || grace < 0 {
			invalid = append(invalid, "DOSED_SWEEP_GRACE")
		} else {
			cfg.SweepGrace = grace
		}
	}

	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		invalid = append(invalid, "DOSED_DRIVER")
	}
	if cfg.Driver == "postgres" && strings.TrimSpace(cfg.PostgresDSN) == "" {
		return Config{}, fmt.Errorf("required configuration missing: DOSED_POSTGRES_DSN")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, "DOSED_TIMEZONE")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
