package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sit-kite/kite-server/internal/protocol"
)

const defaultHandshakeTimeout = 10 * time.Second

// ListenerOptions configures the agent accept loop.
type ListenerOptions struct {
	Addr             string
	MaxPayload       int
	MaxInFlight      int
	HandshakeTimeout time.Duration
	// IDGen assigns connection ids; defaults to uuid.
	IDGen  func() string
	Logger *slog.Logger
}

// Listener accepts incoming agent TCP connections and registers them with a
// Manager after a successful agent-info handshake. The wire is plaintext
// TCP: agents are trusted to live on a private network.
type Listener struct {
	manager *Manager
	opts    ListenerOptions
	logger  *slog.Logger

	mu    sync.Mutex
	bound net.Addr
}

// NewListener builds a Listener feeding the given manager.
func NewListener(manager *Manager, opts ListenerOptions) *Listener {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.IDGen == nil {
		opts.IDGen = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{
		manager: manager,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Addr reports the bound listen address, nil before Run has bound it.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bound
}

// Run binds the listen address and accepts agent connections until ctx is
// cancelled.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	l.mu.Lock()
	l.bound = ln.Addr()
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	l.logger.Info("bridge listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("bridge accept: %w", err)
		}
		go l.adopt(ctx, conn)
	}
}

// adopt wraps an accepted connection and registers it once the agent has
// answered the info handshake.
func (l *Listener) adopt(ctx context.Context, nc net.Conn) {
	id := l.opts.IDGen()
	c := NewConn(id, nc, l.opts.MaxPayload, l.opts.MaxInFlight, l.logger)

	hctx, cancel := context.WithTimeout(ctx, l.opts.HandshakeTimeout)
	defer cancel()

	resp, err := l.manager.dispatch(hctx, c, &protocol.AgentInfoRequest{})
	if err != nil {
		l.logger.Warn("agent handshake failed", "remote", nc.RemoteAddr().String(), "error", err)
		c.Close()
		return
	}
	info, ok := resp.(*protocol.AgentInfoResponse)
	if !ok {
		l.logger.Warn("agent handshake returned wrong payload", "remote", nc.RemoteAddr().String())
		c.Close()
		return
	}
	c.setName(info.Name)
	l.manager.Register(c)
}
