package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sit-kite/kite-server/internal/protocol"
)

var (
	// ErrNoAgentAvailable means the registry holds no live agent.
	ErrNoAgentAvailable = errors.New("no agent available")
	// ErrRequestTimeout means the selected agent did not answer in time.
	// Timeouts do not evict: the agent may be slow, not dead.
	ErrRequestTimeout = errors.New("agent request timed out")
)

// ManagerOptions configures a Manager. Zero values get sensible defaults.
type ManagerOptions struct {
	Sequence       *Sequence
	RequestTimeout time.Duration
	MaxPayload     int
	Logger         *slog.Logger
	Metrics        *Metrics
}

// Manager is the process-wide registry of connected agents and the dispatch
// point for all outgoing work. It is an explicitly constructed value meant to
// be threaded through constructors, not a global.
type Manager struct {
	seq     *Sequence
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	agents map[string]*Conn
}

// NewManager builds a Manager from opts.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Sequence == nil {
		opts.Sequence = NewSequence(0)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		seq:     opts.Sequence,
		timeout: opts.RequestTimeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		agents:  make(map[string]*Conn),
	}
}

// Register adds an agent connection to the registry.
func (m *Manager) Register(c *Conn) {
	m.mu.Lock()
	m.agents[c.ID()] = c
	total := len(m.agents)
	m.mu.Unlock()

	m.metrics.setAgents(total)
	m.logger.Info("agent registered", "agent", c.ID(), "name", c.Name(), "remote", c.Addr(), "total", total)
}

// Unregister removes an agent from the registry and closes its connection.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	c, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
	}
	total := len(m.agents)
	m.mu.Unlock()

	if ok {
		c.Close()
		m.metrics.setAgents(total)
		m.logger.Info("agent unregistered", "agent", id, "total", total)
	}
}

// Len reports the number of registered agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Agents returns a snapshot of all registered agent connections.
func (m *Manager) Agents() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.agents))
	for _, c := range m.agents {
		out = append(out, c.status())
	}
	return out
}

// Request dispatches payload to one uniformly chosen agent and waits for the
// typed response. A timeout leaves the agent registered; a transport failure
// evicts it. There is no automatic retry on another agent.
func (m *Manager) Request(ctx context.Context, payload protocol.RequestPayload) (protocol.ResponsePayload, error) {
	agent, err := m.pick()
	if err != nil {
		return nil, err
	}
	return m.dispatch(ctx, agent, payload)
}

func (m *Manager) pick() (*Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.agents) == 0 {
		return nil, ErrNoAgentAvailable
	}
	n := rand.IntN(len(m.agents))
	for _, c := range m.agents {
		if n == 0 {
			return c, nil
		}
		n--
	}
	return nil, ErrNoAgentAvailable
}

func (m *Manager) dispatch(ctx context.Context, agent *Conn, payload protocol.RequestPayload) (protocol.ResponsePayload, error) {
	body, err := protocol.MarshalRequestPayload(payload)
	if err != nil {
		return nil, err
	}
	req := &protocol.Request{Seq: m.seq.Next(), Body: body}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.metrics.incRequests()
	resp, err := agent.RoundTrip(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			m.metrics.incTimeouts()
			return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, payload.PayloadKind(), m.timeout)
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			m.metrics.incFailures()
			m.evict(agent, err)
			return nil, err
		}
	}

	m.metrics.addBytes(len(req.Body), len(resp.Body))
	if rerr := resp.Err(); rerr != nil {
		// Application-level rejection from the agent; the agent itself
		// is healthy.
		m.metrics.incFailures()
		return nil, rerr
	}
	return protocol.UnmarshalResponsePayload(resp.Body)
}

// evict removes a failed agent. Only the exact registered connection is
// removed, so a reconnected agent reusing the id is not collateral damage.
func (m *Manager) evict(agent *Conn, cause error) {
	m.mu.Lock()
	registered, ok := m.agents[agent.ID()]
	if ok && registered == agent {
		delete(m.agents, agent.ID())
	} else {
		ok = false
	}
	total := len(m.agents)
	m.mu.Unlock()

	agent.Close()
	if ok {
		m.metrics.setAgents(total)
		m.metrics.incEvictions()
		m.logger.Warn("agent evicted", "agent", agent.ID(), "error", cause, "total", total)
	}
}

// RunProbes pings every registered agent at the given interval and evicts
// agents that fail maxFailures consecutive probes. It blocks until ctx is
// cancelled. Probing is optional; without it eviction stays purely
// error-driven.
func (m *Manager) RunProbes(ctx context.Context, interval time.Duration, maxFailures int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, agent := range m.snapshotConns() {
				m.probe(ctx, agent, maxFailures)
			}
		}
	}
}

func (m *Manager) snapshotConns() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.agents))
	for _, c := range m.agents {
		out = append(out, c)
	}
	return out
}

func (m *Manager) probe(ctx context.Context, agent *Conn, maxFailures int) {
	_, err := m.dispatch(ctx, agent, &protocol.PingRequest{SentAt: time.Now().UnixNano()})
	if err == nil {
		agent.probeFailures.Store(0)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	failures := agent.probeFailures.Add(1)
	m.logger.Debug("probe failed", "agent", agent.ID(), "failures", failures, "error", err)
	if int(failures) >= maxFailures {
		m.evict(agent, fmt.Errorf("%d consecutive probe failures: %w", failures, err))
	}
}
