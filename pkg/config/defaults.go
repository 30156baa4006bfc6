package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified fields. Zero
// values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyEngineDefaults(&cfg.Engine)
	applyStoreDefaults(&cfg.Store)
	applyAuthDefaults(&cfg.Auth)
	applyAPIDefaults(&cfg.API)
}

// GetDefaultConfig returns a configuration with every default applied,
// used when no config file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9878"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10_000
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.FIXVersion == "" {
		cfg.FIXVersion = "4.4"
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 10_000
	}
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = 8192
	}
	if cfg.DefaultHeartbeatSeconds == 0 {
		cfg.DefaultHeartbeatSeconds = 30
	}
	if cfg.LogonTimeoutSeconds == 0 {
		cfg.LogonTimeoutSeconds = 30
	}
	if cfg.InboundQueueDepth == 0 {
		cfg.InboundQueueDepth = 4096
	}
	if cfg.OutboundQueueDepth == 0 {
		cfg.OutboundQueueDepth = 4096
	}
	if cfg.ResendBufferWindow == 0 {
		cfg.ResendBufferWindow = 1024
	}
	if cfg.ResetOnLogonPolicy == "" {
		cfg.ResetOnLogonPolicy = "accept"
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.AuditRetentionDays == 0 {
		cfg.AuditRetentionDays = 90
	}
	if cfg.AuditQueueDepth == 0 {
		cfg.AuditQueueDepth = 8192
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "allow_all"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.FailureWindow == 0 {
		cfg.FailureWindow = time.Minute
	}
	if cfg.FailureCoolDown == 0 {
		cfg.FailureCoolDown = 5 * time.Minute
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9879
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
}

// BeginString maps the configured FIX version to its wire
// BeginString.
func (c EngineConfig) BeginString() string {
	if c.FIXVersion == "5.0" {
		return "FIXT.1.1"
	}
	return "FIX.4.4"
}

// HeartbeatInterval returns the default heartbeat as a duration.
func (c EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.DefaultHeartbeatSeconds) * time.Second
}

// LogonTimeout returns the logon timeout as a duration.
func (c EngineConfig) LogonTimeout() time.Duration {
	return time.Duration(c.LogonTimeoutSeconds) * time.Second
}
