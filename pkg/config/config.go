// Package config loads, defaults and validates the FIXGate
// configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (FIXGATE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/fixgate/pkg/store/sql"
)

// Config is the full FIXGate server configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the TCP/TLS listener and shutdown behavior
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Engine configures the protocol core
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// Store selects and configures persistence
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Auth configures counterparty authentication
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// API configures the admin HTTP API
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics enables the Prometheus registry, exposed on the admin API
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr" or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls tracing and profiling.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the transport listener.
type ServerConfig struct {
	// ListenAddr is the FIX listener address, e.g. ":9878"
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// TLSCert / TLSKey enable TLS when both are set
	TLSCert string `mapstructure:"tls_cert" yaml:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key" yaml:"tls_key"`

	// MaxConnections caps accepted connections
	MaxConnections int `mapstructure:"max_connections" validate:"gt=0" yaml:"max_connections"`

	// ShutdownTimeout bounds the graceful logout sweep on stop
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// EngineConfig configures the protocol core.
type EngineConfig struct {
	// FIXVersion is "4.4" or "5.0"
	FIXVersion string `mapstructure:"fix_version" validate:"required,oneof=4.4 5.0" yaml:"fix_version"`

	MaxSessions   int `mapstructure:"max_sessions" validate:"gt=0" yaml:"max_sessions"`
	MaxFrameBytes int `mapstructure:"max_frame_bytes" validate:"gt=0,lte=1048576" yaml:"max_frame_bytes"`

	DefaultHeartbeatSeconds int `mapstructure:"default_heartbeat_seconds" validate:"gt=0" yaml:"default_heartbeat_seconds"`
	LogonTimeoutSeconds     int `mapstructure:"logon_timeout_seconds" validate:"gt=0" yaml:"logon_timeout_seconds"`

	InboundQueueDepth  int `mapstructure:"inbound_queue_depth" validate:"gt=0" yaml:"inbound_queue_depth"`
	OutboundQueueDepth int `mapstructure:"outbound_queue_depth" validate:"gt=0" yaml:"outbound_queue_depth"`
	ResendBufferWindow int `mapstructure:"resend_buffer_window" validate:"gt=0" yaml:"resend_buffer_window"`

	// ResetOnLogonPolicy: accept | ignore | never
	ResetOnLogonPolicy string `mapstructure:"reset_on_logon_policy" validate:"oneof=accept ignore never" yaml:"reset_on_logon_policy"`
}

// StoreConfig selects persistence.
type StoreConfig struct {
	// Backend is "memory" or "sql"
	Backend string `mapstructure:"backend" validate:"oneof=memory sql" yaml:"backend"`

	// Database configures the SQL backend
	Database sql.Config `mapstructure:"database" yaml:"database"`

	// AuditRetentionDays is defaulted and validated but not read by the
	// engine; the admin purge endpoint takes its cutoff from the request
	AuditRetentionDays int `mapstructure:"audit_retention_days" validate:"gte=0" yaml:"audit_retention_days"`

	// AuditQueueDepth bounds the async audit writer
	AuditQueueDepth int `mapstructure:"audit_queue_depth" validate:"gt=0" yaml:"audit_queue_depth"`
}

// AuthCredential is one configured counterparty.
type AuthCredential struct {
	CompID       string `mapstructure:"comp_id" yaml:"comp_id"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
}

// AuthConfig configures counterparty authentication.
type AuthConfig struct {
	// Mode is "allow_all" or "static"
	Mode string `mapstructure:"mode" validate:"oneof=allow_all static" yaml:"mode"`

	Credentials []AuthCredential `mapstructure:"credentials" yaml:"credentials"`

	MaxFailures     int           `mapstructure:"max_failures" yaml:"max_failures"`
	FailureWindow   time.Duration `mapstructure:"failure_window" yaml:"failure_window"`
	FailureCoolDown time.Duration `mapstructure:"failure_cool_down" yaml:"failure_cool_down"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`

	// JWTSecret signs admin bearer tokens
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// AdminUser / AdminPasswordHash gate the login endpoint
	AdminUser         string `mapstructure:"admin_user" yaml:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash" yaml:"admin_password_hash"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configuration from the file at configPath (or the default
// location when empty), applies environment overrides, defaults and
// validation.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fixgate init\n\n"+
				"Or specify a custom config file:\n"+
				"  fixgate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  fixgate init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML with owner-only
// permissions; it can hold password hashes and the JWT secret.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate runs struct-tag validation over the whole configuration
// plus the cross-field checks tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s: failed %q validation (value %v)",
				first.Namespace(), first.Tag(), first.Value())
		}
		return err
	}

	if cfg.Store.Backend == "sql" {
		cfg.Store.Database.ApplyDefaults()
		if err := cfg.Store.Database.Validate(); err != nil {
			return fmt.Errorf("store.database: %w", err)
		}
	}

	if cfg.API.Enabled && cfg.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required when the admin API is enabled")
	}

	if cfg.Auth.Mode == "static" && len(cfg.Auth.Credentials) == 0 {
		return fmt.Errorf("auth.credentials must not be empty in static mode")
	}

	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func setupViper(v *viper.Viper, configPath string) {
	// FIXGATE_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("FIXGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks converts strings to durations so YAML can say
// "30s" for timeout fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/fixgate (or ~/.config/fixgate).
func getConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "fixgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
