package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/acme/autocert"

	"github.com/sit-kite/kite-server/internal/bridge"
	"github.com/sit-kite/kite-server/internal/version"
)

// Options configures the gateway HTTP surface.
type Options struct {
	// Listen is the HTTP(S) bind address.
	Listen string
	// ACMEHosts enables Let's Encrypt TLS for the named hosts. Empty means
	// plain HTTP, the usual mode behind a reverse proxy.
	ACMEHosts []string
	ACMEEmail string
	ACMECache string
	// RelayTarget is the SSO server host:port for the raw websocket relay.
	// Empty disables the relay endpoint.
	RelayTarget string
	Manager     *bridge.Manager
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// Server exposes the host's HTTP surface: prometheus metrics, an agent and
// resource status snapshot, and the websocket SSO relay.
type Server struct {
	opts      Options
	logger    *slog.Logger
	resources *resourceTracker
	relay     *relayHandler
	srv       *http.Server
}

// NewServer builds a gateway server.
func NewServer(opts Options) (*Server, error) {
	if opts.Listen == "" {
		return nil, errors.New("gateway listen address is required")
	}
	if opts.Manager == nil {
		return nil, errors.New("gateway requires an agent manager")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		resources: newResourceTracker(),
	}
	if opts.RelayTarget != "" {
		s.relay = newRelayHandler(opts.RelayTarget, opts.Logger)
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.resources.start(ctx)

	mux := http.NewServeMux()
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/status.json", s.handleStatus)
	if s.relay != nil {
		mux.Handle("/sso/relay", s.relay)
	}

	s.srv = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if len(s.opts.ACMEHosts) > 0 {
			err = s.serveTLS()
		} else {
			s.logger.Info("gateway listening", "addr", s.opts.Listen)
			err = s.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("gateway shutdown", "error", err)
	}
	return nil
}

func (s *Server) serveTLS() error {
	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.opts.ACMEHosts...),
		Email:      s.opts.ACMEEmail,
	}
	if s.opts.ACMECache != "" {
		if err := os.MkdirAll(s.opts.ACMECache, 0o750); err != nil {
			return fmt.Errorf("create acme cache: %w", err)
		}
		manager.Cache = autocert.DirCache(s.opts.ACMECache)
	}
	s.srv.TLSConfig = manager.TLSConfig()

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.logger.Info("gateway listening with TLS", "addr", s.opts.Listen, "hosts", s.opts.ACMEHosts)
	return s.srv.Serve(tls.NewListener(ln, s.srv.TLSConfig))
}

type statusPayload struct {
	Version   string           `json:"version"`
	Agents    []bridge.Status  `json:"agents"`
	Resources resourceSnapshot `json:"resources"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		Version:   version.Version,
		Agents:    s.opts.Manager.Agents(),
		Resources: s.resources.snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("status encode failed", "error", err)
	}
}
