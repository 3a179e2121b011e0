package config

import (
	"errors"
	"fmt"
	"math/bits"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Network  NetworkConfig  `mapstructure:"network"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	GC       GCConfig       `mapstructure:"gc"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds connection-level policy
type ServerConfig struct {
	RequireAuth string `mapstructure:"require_auth"` // shared secret for AUTH, empty disables it
}

// NetworkConfig holds the listener settings and per-connection limits
type NetworkConfig struct {
	Bind           string        `mapstructure:"bind"`
	Port           int           `mapstructure:"port"`
	MaxPacket      int           `mapstructure:"max_packet"`      // MB, bounds a single command
	MaxConnections int           `mapstructure:"max_connections"` // 0 = unlimited
	RateLimit      float64       `mapstructure:"rate_limit"`      // commands per second per connection, 0 = unlimited
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`    // 0 = never
}

// Addr returns the host:port the server listens on
func (n NetworkConfig) Addr() string {
	return net.JoinHostPort(n.Bind, strconv.Itoa(n.Port))
}

// MaxPacketBytes converts MaxPacket to bytes
func (n NetworkConfig) MaxPacketBytes() int {
	return n.MaxPacket * 1024 * 1024
}

// DatabaseConfig defines when and where snapshots are written
type DatabaseConfig struct {
	SaveAfter int    `mapstructure:"save_after"` // seconds between scheduled snapshots
	Mutations int64  `mapstructure:"mutations"`  // writes that trigger an early snapshot
	Dir       string `mapstructure:"dir"`
	Filename  string `mapstructure:"filename"`
}

// SaveInterval returns SaveAfter as a duration
func (d DatabaseConfig) SaveInterval() time.Duration {
	return time.Duration(d.SaveAfter) * time.Second
}

// StorageConfig defines the internal structure of the storage engine
type StorageConfig struct {
	Shards uint `mapstructure:"shards"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

// MetricsConfig controls the admin HTTP endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration from a file and overrides it with environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")

	v.SetEnvPrefix("MOONSTONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Network.Port < 0 || c.Network.Port > 65535 {
		errs = append(errs, fmt.Errorf("network.port %d out of range", c.Network.Port))
	}
	if c.Network.MaxPacket <= 0 {
		errs = append(errs, errors.New("network.max_packet must be positive"))
	}
	if c.Network.MaxConnections < 0 {
		errs = append(errs, errors.New("network.max_connections must not be negative"))
	}
	if c.Network.RateLimit < 0 {
		errs = append(errs, errors.New("network.rate_limit must not be negative"))
	}
	if c.Database.SaveAfter <= 0 {
		errs = append(errs, errors.New("database.save_after must be positive"))
	}
	if c.Database.Mutations < 0 {
		errs = append(errs, errors.New("database.mutations must not be negative"))
	}
	if c.Database.Filename == "" {
		errs = append(errs, errors.New("database.filename is required"))
	}
	if bits.OnesCount(c.Storage.Shards) != 1 {
		errs = append(errs, fmt.Errorf("storage.shards %d is not a power of 2", c.Storage.Shards))
	}
	if err := c.GC.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.require_auth", "")

	// Network
	v.SetDefault("network.bind", "0.0.0.0")
	v.SetDefault("network.port", 6380)
	v.SetDefault("network.max_packet", 512)
	v.SetDefault("network.max_connections", 0)
	v.SetDefault("network.rate_limit", 0)
	v.SetDefault("network.idle_timeout", "0s")

	// Database
	v.SetDefault("database.save_after", 300)
	v.SetDefault("database.mutations", 1000)
	v.SetDefault("database.dir", "data")
	v.SetDefault("database.filename", "dump.mss")

	// Storage
	v.SetDefault("storage.shards", 32)

	// GC
	gc := DefaultGCConfig()
	v.SetDefault("gc.enabled", gc.Enabled)
	v.SetDefault("gc.interval", gc.Interval.String())
	v.SetDefault("gc.samples_per_check", gc.SamplesPerCheck)
	v.SetDefault("gc.match_threshold", gc.MatchThreshold)

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9121")
}
