// Package config loads jobsync settings from flags, environment and an optional file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/expresswash/jobsync/pkg/lifecycle"
	"github.com/expresswash/jobsync/pkg/security"
)

// EnvPrefix prefixes every environment variable, e.g. JOBSYNC_REMOTE_BASE_URL.
const EnvPrefix = "JOBSYNC"

// Config is the resolved configuration.
type Config struct {
	Remote RemoteConfig
	Store  StoreConfig
	Commit CommitConfig
	Log    LogConfig
	Sync   SyncConfig
	Server ServerConfig
}

type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type StoreConfig struct {
	DSN          string
	MaxOpenConns int
}

type CommitConfig struct {
	Mode           string
	ReplayAttempts int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// SyncConfig lists the users and washers synced on Schedule.
type SyncConfig struct {
	Schedule string
	Users    []int
	Washers  []int
}

type ServerConfig struct {
	Addr string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "http://localhost:8080")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", "30s")

	v.SetDefault("store.dsn", "jobsync.db")
	v.SetDefault("store.max_open_conns", 10)

	v.SetDefault("commit.mode", "write-through")
	v.SetDefault("commit.replay_attempts", 5)
	v.SetDefault("commit.initial_backoff", "200ms")
	v.SetDefault("commit.max_backoff", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.users", []int{})
	v.SetDefault("sync.washers", []int{})

	v.SetDefault("server.addr", ":8090")
}

// BindEnv maps JOBSYNC_* environment variables onto v's keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Load reads file into v when it is non-empty and resolves the configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		Remote: RemoteConfig{
			BaseURL: v.GetString("remote.base_url"),
			Token:   v.GetString("remote.token"),
			Timeout: v.GetDuration("remote.timeout"),
		},
		Store: StoreConfig{
			DSN:          v.GetString("store.dsn"),
			MaxOpenConns: v.GetInt("store.max_open_conns"),
		},
		Commit: CommitConfig{
			Mode:           v.GetString("commit.mode"),
			ReplayAttempts: security.ClampReplayAttempts(v.GetInt("commit.replay_attempts")),
			InitialBackoff: v.GetDuration("commit.initial_backoff"),
			MaxBackoff:     v.GetDuration("commit.max_backoff"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Sync: SyncConfig{
			Schedule: v.GetString("sync.schedule"),
			Users:    v.GetIntSlice("sync.users"),
			Washers:  v.GetIntSlice("sync.washers"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later with a less useful error.
func (c *Config) Validate() error {
	if _, err := security.ValidateBaseURL(c.Remote.BaseURL); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Mode parses the configured commit mode.
func (c *Config) Mode() (lifecycle.CommitMode, error) {
	return lifecycle.ParseCommitMode(c.Commit.Mode)
}

// NewLogger builds the process logger. Format "json" selects JSON output.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("jobsync: invalid log level %q", s)
	}
	return level, nil
}
