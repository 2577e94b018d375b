package gateway

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sit-kite/kite-server/internal/bridge"
	"github.com/sit-kite/kite-server/internal/config"
	"github.com/sit-kite/kite-server/internal/observability"
	"github.com/sit-kite/kite-server/internal/runtime"
	"github.com/sit-kite/kite-server/internal/util"
)

// NewCommand builds the `kite serve` subcommand: the host process running
// the agent bridge listener plus the HTTP gateway.
func NewCommand(globals *runtime.Options) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kite host: agent bridge, metrics and SSO relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), globals, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	return cmd
}

func runHost(parent context.Context, globals *runtime.Options, cfg *config.Config) error {
	ctx, cancel := util.WithSignalContext(parent)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	registry := prometheus.NewRegistry()
	metrics := bridge.NewMetrics(registry)

	manager := bridge.NewManager(bridge.ManagerOptions{
		RequestTimeout: cfg.Bridge.RequestTimeout,
		MaxPayload:     cfg.Bridge.MaxPayload,
		Logger:         globals.Component("bridge"),
		Metrics:        metrics,
	})
	var idGen func() string
	if cfg.Bridge.IDMode == "cuid" {
		idGen = cuid.New
	} else {
		idGen = uuid.NewString
	}
	listener := bridge.NewListener(manager, bridge.ListenerOptions{
		Addr:       cfg.Bridge.Listen,
		MaxPayload: cfg.Bridge.MaxPayload,
		IDGen:      idGen,
		Logger:     globals.Component("bridge"),
	})

	relayTarget, err := relayTargetFromBaseURL(cfg.Portal.BaseURL)
	if err != nil {
		return err
	}
	srv, err := NewServer(Options{
		Listen:      cfg.Gateway.Listen,
		ACMEHosts:   cfg.Gateway.ACMEHosts,
		ACMEEmail:   cfg.Gateway.ACMEEmail,
		ACMECache:   cfg.Gateway.ACMECache,
		RelayTarget: relayTarget,
		Manager:     manager,
		Gatherer:    registry,
		Logger:      globals.Component("gateway"),
	})
	if err != nil {
		return err
	}

	if cfg.Bridge.ProbeInterval > 0 {
		go manager.RunProbes(ctx, cfg.Bridge.ProbeInterval, cfg.Bridge.ProbeFailures)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- listener.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}
	cancel()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	globals.Logger().Info("kite host stopped")
	return runErr
}

// relayTargetFromBaseURL turns the configured SSO origin into a dialable
// host:port for the raw relay. An empty base URL disables the relay.
func relayTargetFromBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	host := u.Host
	if u.Port() == "" {
		host += ":443"
	}
	return host, nil
}
