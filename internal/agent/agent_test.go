package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sit-kite/kite-server/internal/bridge"
	"github.com/sit-kite/kite-server/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHost brings up a manager plus listener on a loopback port and returns
// them with the bound address.
func startHost(t *testing.T, ctx context.Context) (*bridge.Manager, string) {
	t.Helper()
	m := bridge.NewManager(bridge.ManagerOptions{
		RequestTimeout: 3 * time.Second,
		Logger:         discardLogger(),
	})
	l := bridge.NewListener(m, bridge.ListenerOptions{
		Addr:   "127.0.0.1:0",
		Logger: discardLogger(),
	})
	go func() {
		_ = l.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return l.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond, "listener never bound")
	return m, l.Addr().String()
}

func startAgent(t *testing.T, ctx context.Context, addr, name string, reg *Registry) {
	t.Helper()
	a, err := New(Options{
		HostAddr:     addr,
		Name:         name,
		ReconnectMin: 50 * time.Millisecond,
		ReconnectMax: 200 * time.Millisecond,
		Logger:       discardLogger(),
		Handlers:     reg,
	})
	require.NoError(t, err)
	go func() {
		_ = a.Run(ctx)
	}()
}

func TestAgentServesRequestsEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, addr := startHost(t, ctx)

	reg := NewRegistry("worker-1")
	reg.Register(protocol.KindLibrarySearch, func(ctx context.Context, req protocol.RequestPayload) (protocol.ResponsePayload, error) {
		search := req.(*protocol.LibrarySearchRequest)
		return &protocol.LibrarySearchResponse{
			Total: 1,
			Books: []protocol.Book{{ID: "b1", Title: "Results for " + search.Keyword}},
		}, nil
	})
	startAgent(t, ctx, addr, "worker-1", reg)

	require.Eventually(t, func() bool {
		return m.Len() == 1
	}, 3*time.Second, 20*time.Millisecond, "agent never completed the handshake")

	agents := m.Agents()
	require.Len(t, agents, 1)
	require.Equal(t, "worker-1", agents[0].Name)

	sent := time.Now().UnixNano()
	resp, err := m.Request(ctx, &protocol.PingRequest{SentAt: sent})
	require.NoError(t, err)
	pong := resp.(*protocol.PingResponse)
	require.Equal(t, sent, pong.SentAt)
	require.GreaterOrEqual(t, pong.RepliedAt, sent)

	resp, err = m.Request(ctx, &protocol.LibrarySearchRequest{Keyword: "golang", Page: 1})
	require.NoError(t, err)
	found := resp.(*protocol.LibrarySearchResponse)
	require.Equal(t, 1, found.Total)
	require.Equal(t, "Results for golang", found.Books[0].Title)
}

func TestAgentRejectsUnknownOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, addr := startHost(t, ctx)
	startAgent(t, ctx, addr, "worker-1", NewRegistry("worker-1"))

	require.Eventually(t, func() bool {
		return m.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	_, err := m.Request(ctx, &protocol.ScoreListRequest{Account: "s123"})
	var rerr *protocol.RemoteError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, protocol.CodeUnknownOperation, rerr.Code)
}

func TestAgentHandlerErrorPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, addr := startHost(t, ctx)

	reg := NewRegistry("worker-1")
	reg.Register(protocol.KindBookHolding, func(ctx context.Context, req protocol.RequestPayload) (protocol.ResponsePayload, error) {
		return nil, errors.New("upstream returned 502")
	})
	startAgent(t, ctx, addr, "worker-1", reg)

	require.Eventually(t, func() bool {
		return m.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	_, err := m.Request(ctx, &protocol.BookHoldingRequest{BookID: "b1"})
	var rerr *protocol.RemoteError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, protocol.CodeHandlerError, rerr.Code)
	require.Equal(t, "upstream returned 502", rerr.Message)
	require.Equal(t, 1, m.Len(), "handler errors must not evict the agent")
}

func TestAgentDisconnectEvictsOnNextRequest(t *testing.T) {
	hostCtx, hostCancel := context.WithCancel(context.Background())
	defer hostCancel()
	agentCtx, agentCancel := context.WithCancel(context.Background())

	m, addr := startHost(t, hostCtx)
	startAgent(t, agentCtx, addr, "worker-1", NewRegistry("worker-1"))

	require.Eventually(t, func() bool {
		return m.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	agentCancel()

	// Eviction is error-driven: keep requesting until the dead connection
	// surfaces and gets removed.
	require.Eventually(t, func() bool {
		_, err := m.Request(hostCtx, &protocol.PingRequest{SentAt: time.Now().UnixNano()})
		if errors.Is(err, bridge.ErrNoAgentAvailable) {
			return true
		}
		return m.Len() == 0
	}, 3*time.Second, 50*time.Millisecond, "dead agent never evicted")
}
