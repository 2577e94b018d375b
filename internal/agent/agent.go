package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"
)

// Options configures a worker agent.
type Options struct {
	// HostAddr is the host's bridge listen address (host:port).
	HostAddr string
	// Name is the agent's self-declared name, reported in the handshake.
	Name string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// ReconnectMin/Max bound the exponential backoff between attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// MaxPayload caps inbound frame bodies; zero uses the protocol default.
	MaxPayload int
	Logger     *slog.Logger
	Handlers   *Registry
}

func (o *Options) validate() error {
	if o.HostAddr == "" {
		return errors.New("host address is required")
	}
	if o.Name == "" {
		return errors.New("agent name is required")
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 2 * time.Second
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = o.ReconnectMin
	}
	return nil
}

// Agent is a worker process that dials the host, keeps one connection alive,
// and services delegated requests through its handler registry.
type Agent struct {
	opts     Options
	logger   *slog.Logger
	registry *Registry
}

// New validates opts and builds an Agent.
func New(opts Options) (*Agent, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Handlers == nil {
		opts.Handlers = NewRegistry(opts.Name)
	}
	return &Agent{
		opts:     opts,
		logger:   opts.Logger,
		registry: opts.Handlers,
	}, nil
}

// Run keeps a connection to the host alive, reconnecting with jittered
// exponential backoff, until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	backoff := a.opts.ReconnectMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now()
		err := a.connectOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			a.logger.Warn("connection failed", "error", err)
		} else {
			a.logger.Info("connection terminated, reconnecting")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > time.Minute {
			backoff = a.opts.ReconnectMin
		}
		select {
		case <-time.After(jitter(backoff)):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < a.opts.ReconnectMax {
			backoff *= 2
			if backoff > a.opts.ReconnectMax {
				backoff = a.opts.ReconnectMax
			}
		}
	}
}

func (a *Agent) connectOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: a.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", a.opts.HostAddr)
	if err != nil {
		return err
	}
	a.logger.Info("connected to host", "addr", a.opts.HostAddr)
	return newSession(a, conn).run(ctx)
}

// jitter spreads retries over +-20% of base so reconnecting agents do not
// stampede the host in lockstep.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	f := 0.4
	scale := 1 - f/2 + rand.Float64()*f
	return time.Duration(float64(base) * scale)
}
