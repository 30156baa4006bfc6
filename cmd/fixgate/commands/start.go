package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/internal/telemetry"
	"github.com/marmos91/fixgate/pkg/adapter/tcp"
	"github.com/marmos91/fixgate/pkg/api"
	fixauth "github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/config"
	"github.com/marmos91/fixgate/pkg/engine"
	"github.com/marmos91/fixgate/pkg/metrics"
	promMetrics "github.com/marmos91/fixgate/pkg/metrics/prometheus"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
	"github.com/marmos91/fixgate/pkg/store/memory"
	sqlstore "github.com/marmos91/fixgate/pkg/store/sql"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the FIXGate server",
	Long: `Start the FIXGate server with the specified configuration.

Use --config to specify a custom configuration file, or it will use
the default location at $XDG_CONFIG_HOME/fixgate/config.yaml.

Examples:
  # Start with default config location
  fixgate start

  # Start with custom config
  fixgate start --config /etc/fixgate/config.yaml

  # Start with environment variable overrides
  FIXGATE_LOGGING_LEVEL=DEBUG fixgate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}
	config.Watch(cfgFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry and profiling are opt-in.
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "fixgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	defer func() { _ = telemetryShutdown(context.Background()) }()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "fixgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("profiling init failed: %w", err)
	}
	defer func() { _ = profilingShutdown() }()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	auditWriter := store.NewAuditWriter(st, cfg.Store.AuditQueueDepth)

	eng := engine.New(engine.Config{
		MaxSessions:   cfg.Engine.MaxSessions,
		MaxFrameBytes: cfg.Engine.MaxFrameBytes,
		Session: session.Config{
			BeginString:        cfg.Engine.BeginString(),
			HeartbeatInterval:  cfg.Engine.HeartbeatInterval(),
			LogonTimeout:       cfg.Engine.LogonTimeout(),
			ResendBufferWindow: cfg.Engine.ResendBufferWindow,
			InboundQueueDepth:  cfg.Engine.InboundQueueDepth,
			ResetOnLogonPolicy: cfg.Engine.ResetOnLogonPolicy,
		},
	}, engine.Deps{
		Store:   st,
		Audit:   auditWriter,
		Auth:    buildAuthenticator(cfg),
		Metrics: promMetrics.NewEngineMetrics(),
	})

	if err := eng.Start(ctx); err != nil {
		return err
	}

	fixAdapter := tcp.New(tcp.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		TLSCert:        cfg.Server.TLSCert,
		TLSKey:         cfg.Server.TLSKey,
		MaxConnections: cfg.Server.MaxConnections,
	}, eng)

	errCh := make(chan error, 2)
	go func() {
		if err := fixAdapter.Serve(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.NewServer(api.Config{
			Port:              cfg.API.Port,
			JWTSecret:         cfg.API.JWTSecret,
			AdminUser:         cfg.API.AdminUser,
			AdminPasswordHash: cfg.API.AdminPasswordHash,
			ReadTimeout:       cfg.API.ReadTimeout,
			WriteTimeout:      cfg.API.WriteTimeout,
			IdleTimeout:       cfg.API.IdleTimeout,
		}, eng)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	logger.Info("fixgate started",
		"version", Version,
		logger.KeyAddr, cfg.Server.ListenAddr,
		"store", cfg.Store.Backend,
		logger.KeyFIXVersion, cfg.Engine.BeginString())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("fatal server error", logger.KeyError, err)
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()

	if err := fixAdapter.Stop(stopCtx); err != nil {
		logger.Warn("adapter stop", logger.KeyError, err)
	}
	if err := eng.Stop(stopCtx); err != nil {
		logger.Warn("engine stop", logger.KeyError, err)
	}

	// Leave a breath for the audit drain before the store closes.
	time.Sleep(50 * time.Millisecond)
	return nil
}

// buildStore selects the persistence backend from configuration.
func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("using in-memory store: messages will not survive a restart")
		return memory.New(), nil
	case "sql":
		st, err := sqlstore.New(&cfg.Store.Database)
		if err != nil {
			return nil, fmt.Errorf("sql store init failed: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildAuthenticator selects the logon authenticator.
func buildAuthenticator(cfg *config.Config) fixauth.Authenticator {
	if cfg.Auth.Mode != "static" {
		return fixauth.AllowAll{}
	}

	creds := make([]fixauth.Credential, len(cfg.Auth.Credentials))
	for i, c := range cfg.Auth.Credentials {
		creds[i] = fixauth.Credential{CompID: c.CompID, PasswordHash: c.PasswordHash}
	}
	return fixauth.NewStatic(fixauth.StaticConfig{
		Credentials: creds,
		MaxFailures: cfg.Auth.MaxFailures,
		Window:      cfg.Auth.FailureWindow,
		CoolDown:    cfg.Auth.FailureCoolDown,
	})
}
