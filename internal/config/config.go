// Package config loads tenantgate configuration from an optional YAML file,
// TENANTGATE_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Override OverrideConfig `mapstructure:"override"`
	Binding  BindingConfig  `mapstructure:"binding"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	// AppRole and LookupRole are granted privileges by cmd/policy.
	AppRole    string `mapstructure:"app_role"`
	LookupRole string `mapstructure:"lookup_role"`
}

type AuthConfig struct {
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	IdPSecret     string        `mapstructure:"idp_secret"`
	IdPIssuer     string        `mapstructure:"idp_issuer"`
	IdPAudience   string        `mapstructure:"idp_audience"`
}

type OverrideConfig struct {
	SuperAdminRole string        `mapstructure:"super_admin_role"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout"`
}

type BindingConfig struct {
	AppPath        string        `mapstructure:"app_path"`
	OnboardingPath string        `mapstructure:"onboarding_path"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// Load reads configuration. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	cfg, err := read(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadDatabase reads configuration for tools that only talk to the database.
// Settings of the other sections are not validated.
func LoadDatabase(cfgFile string) (*DatabaseConfig, error) {
	cfg, err := read(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg.Database); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg.Database, nil
}

func read(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tenantgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tenantgate")
	}

	v.SetEnvPrefix("TENANTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("log.level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.app_role", "")
	v.SetDefault("database.lookup_role", "tenantgate_lookup")

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", 8*time.Hour)
	v.SetDefault("auth.cookie_name", "tg_session")
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.idp_secret", "")
	v.SetDefault("auth.idp_issuer", "")
	v.SetDefault("auth.idp_audience", "")

	v.SetDefault("override.super_admin_role", "platform_super_admin")
	v.SetDefault("override.cleanup_timeout", 5*time.Second)

	v.SetDefault("binding.app_path", "/app")
	v.SetDefault("binding.onboarding_path", "/onboarding")
	v.SetDefault("binding.lookup_timeout", 3*time.Second)
}

func validate(cfg *Config) error {
	if err := validateDatabase(&cfg.Database); err != nil {
		return err
	}
	if cfg.Auth.SessionSecret == "" {
		return errors.New("auth.session_secret is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}
	if strings.TrimSpace(cfg.Override.SuperAdminRole) == "" {
		return errors.New("override.super_admin_role must not be empty")
	}
	return nil
}

func validateDatabase(db *DatabaseConfig) error {
	if db.URL == "" {
		return errors.New("database.url is required")
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)",
			db.MinConns, db.MaxConns)
	}
	if db.AppRole != "" && db.AppRole == db.LookupRole {
		return errors.New("database.lookup_role must differ from database.app_role")
	}
	return nil
}
