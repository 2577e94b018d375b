package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sit-kite/kite-server/internal/protocol"
	"github.com/sit-kite/kite-server/internal/util/bytelimiter"
)

// ErrAgentUnavailable marks a request that could not be handed to an agent
// because its connection is gone.
var ErrAgentUnavailable = errors.New("agent unavailable")

const (
	defaultOutboundDepth = 128
	defaultMaxInFlight   = 4 << 20
)

// Conn wraps one live agent TCP connection. Outgoing requests are drained
// FIFO by a sender goroutine; a receiver goroutine matches inbound response
// frames to pending callers by ack. Multiple callers may pipeline requests
// through the same connection concurrently.
type Conn struct {
	id   string
	name string
	addr string

	conn       net.Conn
	logger     *slog.Logger
	maxPayload int

	outbound chan *protocol.Request
	limiter  *bytelimiter.ByteLimiter

	pendingMu sync.Mutex
	pending   map[uint64]chan *protocol.Response

	requestCount  atomic.Int64
	lastUse       atomic.Int64
	probeFailures atomic.Int32
	connectedAt   time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn wraps nc and starts its sender and receiver loops.
func NewConn(id string, nc net.Conn, maxPayload, maxInFlight int, logger *slog.Logger) *Conn {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	c := &Conn{
		id:          id,
		addr:        nc.RemoteAddr().String(),
		conn:        nc,
		logger:      logger.With("agent", id, "remote", nc.RemoteAddr().String()),
		maxPayload:  maxPayload,
		outbound:    make(chan *protocol.Request, defaultOutboundDepth),
		limiter:     bytelimiter.New(maxInFlight),
		pending:     make(map[uint64]chan *protocol.Response),
		connectedAt: time.Now(),
		closed:      make(chan struct{}),
	}
	go c.senderLoop()
	go c.receiverLoop()
	return c
}

func (c *Conn) ID() string   { return c.id }
func (c *Conn) Addr() string { return c.addr }

// Name reports the agent's self-declared name, set after the info handshake.
func (c *Conn) Name() string { return c.name }

func (c *Conn) setName(name string) { c.name = name }

// RoundTrip sends req and blocks until the matching response arrives, ctx
// expires, or the connection dies. On ctx expiry the pending entry is
// discarded; a response arriving later is dropped by the receiver loop.
func (c *Conn) RoundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ch := make(chan *protocol.Response, 1)
	c.pendingMu.Lock()
	if c.isClosed() {
		c.pendingMu.Unlock()
		return nil, ErrAgentUnavailable
	}
	c.pending[req.Seq] = ch
	c.pendingMu.Unlock()

	c.limiter.Acquire(len(req.Body))
	select {
	case c.outbound <- req:
	case <-c.closed:
		c.limiter.Release(len(req.Body))
		c.discard(req.Seq)
		return nil, ErrAgentUnavailable
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrAgentUnavailable
		}
		c.requestCount.Add(1)
		c.lastUse.Store(time.Now().UnixNano())
		return resp, nil
	case <-ctx.Done():
		c.discard(req.Seq)
		return nil, ctx.Err()
	}
}

func (c *Conn) senderLoop() {
	for {
		select {
		case req := <-c.outbound:
			err := protocol.WriteRequest(c.conn, req)
			c.limiter.Release(len(req.Body))
			if err != nil {
				if !c.isClosed() {
					c.logger.Warn("request write failed", "seq", req.Seq, "error", err)
				}
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) receiverLoop() {
	for {
		resp, err := protocol.ReadResponse(c.conn, c.maxPayload)
		if err != nil {
			if !c.isClosed() {
				c.logger.Warn("response read failed", "error", err)
			}
			c.Close()
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.Ack]
		if ok {
			delete(c.pending, resp.Ack)
		}
		c.pendingMu.Unlock()

		if !ok {
			// Benign race: the waiter timed out, or the agent answered an
			// ack we never issued. Log and carry on.
			c.logger.Debug("response without pending request", "ack", resp.Ack)
			continue
		}
		ch <- resp
	}
}

// discard drops a pending entry without completing it.
func (c *Conn) discard(seq uint64) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// Close tears the connection down and fails out every pending caller.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		c.limiter.Close()

		c.pendingMu.Lock()
		for seq, ch := range c.pending {
			delete(c.pending, seq)
			close(ch)
		}
		c.pendingMu.Unlock()
	})
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Status is a point-in-time view of one agent connection, used by the
// gateway status endpoint.
type Status struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Addr        string    `json:"addr"`
	Requests    int64     `json:"requests"`
	LastUse     time.Time `json:"lastUse"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (c *Conn) status() Status {
	var lastUse time.Time
	if ns := c.lastUse.Load(); ns > 0 {
		lastUse = time.Unix(0, ns)
	}
	return Status{
		ID:          c.id,
		Name:        c.name,
		Addr:        c.addr,
		Requests:    c.requestCount.Load(),
		LastUse:     lastUse,
		ConnectedAt: c.connectedAt,
	}
}
