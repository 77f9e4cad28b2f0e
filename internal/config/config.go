// Package config loads apiwatch settings from a YAML file, the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// APIWATCH_DATABASE_PATH or APIWATCH_LOG_LEVEL.
const EnvPrefix = "apiwatch"

type Config struct {
	DatabasePath string
	Listen       string
	LogLevel     string
	LogFormat    string
	RedisAddr    string
	Timezone     string
	Location     *time.Location

	// AuthTokens maps an API token to the user id it authenticates.
	AuthTokens map[string]string

	RetentionDays     int
	RetentionSchedule string

	AlertCooldown time.Duration
	MaxAttempts   uint
}

// Loader reads configuration and reports changes to the config file.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An empty file searches for .apiwatch.yaml
// in the home directory and the working directory.
func NewLoader(file string) *Loader {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".apiwatch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", "apiwatch.db")
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("redis.addr", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("auth.tokens", "")
	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("alerts.cooldown", time.Hour)
	v.SetDefault("increment.max_attempts", 5)

	return &Loader{v: v}
}

// Load reads .env, the config file (if any) and the environment.
func (l *Loader) Load() (*Config, error) {
	godotenv.Load()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return l.decode()
}

// ConfigFileUsed returns the path of the config file read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the re-read configuration whenever the config file
// changes. It does nothing when no config file was read.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.decode())
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	v := l.v
	cfg := &Config{
		DatabasePath:      v.GetString("database_path"),
		Listen:            v.GetString("listen"),
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
		RedisAddr:         v.GetString("redis.addr"),
		Timezone:          v.GetString("timezone"),
		AuthTokens:        v.GetStringMapString("auth.tokens"),
		RetentionDays:     v.GetInt("retention.days"),
		RetentionSchedule: v.GetString("retention.schedule"),
		AlertCooldown:     v.GetDuration("alerts.cooldown"),
		MaxAttempts:       v.GetUint("increment.max_attempts"),
	}
	if len(cfg.AuthTokens) == 0 {
		tokens, err := parseTokens(v.GetString("auth.tokens"))
		if err != nil {
			return nil, err
		}
		cfg.AuthTokens = tokens
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTokens reads the environment form of auth.tokens:
// "token1=user1,token2=user2".
func parseTokens(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid auth token entry %q, want token=user", pair)
		}
		out[token] = user
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return errors.New("database_path must not be empty")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention.days must be at least 1, got %d", c.RetentionDays)
	}
	if c.AlertCooldown <= 0 {
		return fmt.Errorf("alerts.cooldown must be positive, got %s", c.AlertCooldown)
	}
	if c.MaxAttempts < 1 {
		return errors.New("increment.max_attempts must be at least 1")
	}
	return nil
}

// Retention returns the sample retention as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
