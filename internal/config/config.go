// Package config provides Viper-based configuration loading for the town server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode: "production" or "development".
	// Development accepts websocket upgrades from any origin.
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// HTTPConfig holds the websocket and REST listener settings.
type HTTPConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`
	// Port is the TCP port.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds reading a REST request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds a single websocket frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins lists accepted Origin headers for websocket upgrades.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// SendBuffer is the per-connection outbound frame buffer.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// AdminConfig holds the gRPC health listener settings.
type AdminConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is one of "memory", "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`
	// Timeout bounds each store call made by a town.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, additionally writes logs to a rolling file.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// DefaultTown is a town created at startup.
type DefaultTown struct {
	FriendlyName     string `mapstructure:"friendly_name"`
	IsPubliclyListed bool   `mapstructure:"public"`
	Map              string `mapstructure:"map"`
}

// TownConfig holds town simulation settings.
type TownConfig struct {
	// MapDir is the directory of YAML or Tiled JSON map files.
	MapDir string `mapstructure:"map_dir"`
	// CatalogPath is the YAML pet catalog seeded into the store at startup.
	CatalogPath string `mapstructure:"catalog_path"`
	// ScriptDir holds Lua town hooks. Empty disables scripting.
	ScriptDir string `mapstructure:"script_dir"`
	// ScriptInstructionLimit caps Lua instructions per hook call. 0 = default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// Capacity is the maximum number of players per town.
	Capacity int `mapstructure:"capacity"`
	// ChatCapacity is the number of chat messages a town retains.
	ChatCapacity int `mapstructure:"chat_capacity"`
	// EmoteDuration is how long an emote is displayed.
	EmoteDuration time.Duration `mapstructure:"emote_duration"`
	// StartingBalance is the balance of a newly joined player.
	StartingBalance int64 `mapstructure:"starting_balance"`
	// Rewards maps game kind to the currency awarded to the winner.
	Rewards map[string]int64 `mapstructure:"rewards"`
	// AwardAttempts bounds retries of a failed award.
	AwardAttempts int `mapstructure:"award_attempts"`
	// AwardInitialInterval is the first retry delay; later delays grow exponentially.
	AwardInitialInterval time.Duration `mapstructure:"award_initial_interval"`
	// InboxSize is the town event queue depth.
	InboxSize int `mapstructure:"inbox_size"`
	// LeaderboardSize is the number of rows in the all-time leaderboard.
	LeaderboardSize int `mapstructure:"leaderboard_size"`
	// BroadcastLeaderboards pushes both leaderboards to every player when a
	// balance changes or a player joins or leaves.
	BroadcastLeaderboards bool `mapstructure:"broadcast_leaderboards"`
	// DefaultTowns are created at startup.
	DefaultTowns []DefaultTown `mapstructure:"default_towns"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Town     TownConfig     `mapstructure:"town"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePort("admin.port", c.Admin.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Driver == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTown(c.Town); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	validModes := map[string]bool{"production": true, "development": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("server.mode must be one of [production, development], got %q", s.Mode)
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if err := validatePort("http.port", h.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if h.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("http.send_buffer must be >= 1, got %d", h.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStore(s StoreConfig) error {
	switch s.Driver {
	case "memory", "postgres":
	case "sqlite":
		if s.SQLitePath == "" {
			return errors.New("store.sqlite_path must not be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of [memory, postgres, sqlite], got %q", s.Driver)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive, got %s", s.Timeout)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

func validateTown(t TownConfig) error {
	var errs []string
	if t.MapDir == "" {
		errs = append(errs, "town.map_dir must not be empty")
	}
	if t.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("town.capacity must be >= 1, got %d", t.Capacity))
	}
	if t.ChatCapacity < 1 {
		errs = append(errs, fmt.Sprintf("town.chat_capacity must be >= 1, got %d", t.ChatCapacity))
	}
	if t.EmoteDuration <= 0 {
		errs = append(errs, "town.emote_duration must be positive")
	}
	if t.StartingBalance < 0 {
		errs = append(errs, "town.starting_balance must not be negative")
	}
	for kind, amount := range t.Rewards {
		if amount < 0 {
			errs = append(errs, fmt.Sprintf("town.rewards.%s must not be negative", kind))
		}
	}
	if t.AwardAttempts < 1 {
		errs = append(errs, fmt.Sprintf("town.award_attempts must be >= 1, got %d", t.AwardAttempts))
	}
	if t.InboxSize < 1 {
		errs = append(errs, fmt.Sprintf("town.inbox_size must be >= 1, got %d", t.InboxSize))
	}
	if t.LeaderboardSize < 1 {
		errs = append(errs, fmt.Sprintf("town.leaderboard_size must be >= 1, got %d", t.LeaderboardSize))
	}
	for i, dt := range t.DefaultTowns {
		if dt.FriendlyName == "" {
			errs = append(errs, fmt.Sprintf("town.default_towns[%d].friendly_name must not be empty", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TOWN_ prefix
	v.SetEnvPrefix("TOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "production")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8081)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.send_buffer", 256)

	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 50061)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "covey")
	v.SetDefault("database.password", "covey")
	v.SetDefault("database.name", "covey")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "covey.db")
	v.SetDefault("store.timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("town.map_dir", "content/maps")
	v.SetDefault("town.catalog_path", "content/catalog/pets.yaml")
	v.SetDefault("town.script_dir", "")
	v.SetDefault("town.script_instruction_limit", 0)
	v.SetDefault("town.capacity", 50)
	v.SetDefault("town.chat_capacity", 200)
	v.SetDefault("town.emote_duration", "2s")
	v.SetDefault("town.starting_balance", 0)
	v.SetDefault("town.rewards.tictactoe", 1)
	v.SetDefault("town.rewards.connectfour", 2)
	v.SetDefault("town.award_attempts", 5)
	v.SetDefault("town.award_initial_interval", "100ms")
	v.SetDefault("town.inbox_size", 256)
	v.SetDefault("town.leaderboard_size", 10)
	v.SetDefault("town.broadcast_leaderboards", true)
}
