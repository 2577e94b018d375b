package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sit-kite/kite-server/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnCorrelatesConcurrentRequests(t *testing.T) {
	const n = 32

	agentSide, hostSide := net.Pipe()
	c := NewConn("a1", hostSide, 0, 0, discardLogger())
	defer c.Close()

	// Fake agent: collect every request, then answer in reverse order so
	// correlation cannot succeed by accident of FIFO ordering.
	go func() {
		reqs := make([]*protocol.Request, 0, n)
		for len(reqs) < n {
			req, err := protocol.ReadRequest(agentSide, 0)
			if err != nil {
				return
			}
			reqs = append(reqs, req)
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			resp := &protocol.Response{Ack: reqs[i].Seq, Body: reqs[i].Body}
			if err := protocol.WriteResponse(agentSide, resp); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := []byte(fmt.Sprintf("payload-%d", i))
			resp, err := c.RoundTrip(ctx, &protocol.Request{Seq: uint64(i + 1), Body: body})
			if err != nil {
				errs <- err
				return
			}
			if string(resp.Body) != string(body) {
				errs <- fmt.Errorf("request %d got body %q", i, resp.Body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestConnTimeoutIsolatedFromLaterRequests(t *testing.T) {
	agentSide, hostSide := net.Pipe()
	c := NewConn("a1", hostSide, 0, 0, discardLogger())
	defer c.Close()

	// Fake agent: hold the first request, answer the second immediately,
	// then answer the first late.
	go func() {
		first, err := protocol.ReadRequest(agentSide, 0)
		if err != nil {
			return
		}
		second, err := protocol.ReadRequest(agentSide, 0)
		if err != nil {
			return
		}
		_ = protocol.WriteResponse(agentSide, &protocol.Response{Ack: second.Seq, Body: second.Body})
		_ = protocol.WriteResponse(agentSide, &protocol.Response{Ack: first.Seq, Body: first.Body})
	}()

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.RoundTrip(shortCtx, &protocol.Request{Seq: 1, Body: []byte("slow")})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	resp, err := c.RoundTrip(ctx, &protocol.Request{Seq: 2, Body: []byte("fast")})
	require.NoError(t, err)
	require.Equal(t, "fast", string(resp.Body))

	// The late answer for seq 1 must be dropped without disturbing the
	// connection; give the receiver loop a moment to process it.
	time.Sleep(20 * time.Millisecond)
	require.False(t, c.isClosed())
}

func TestConnCloseFailsPendingCallers(t *testing.T) {
	agentSide, hostSide := net.Pipe()
	c := NewConn("a1", hostSide, 0, 0, discardLogger())

	go func() {
		// Swallow the request and never answer.
		_, _ = protocol.ReadRequest(agentSide, 0)
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.RoundTrip(context.Background(), &protocol.Request{Seq: 7, Body: []byte("x")})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAgentUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("pending caller not released by Close")
	}
}

func TestConnRejectsRequestsAfterClose(t *testing.T) {
	_, hostSide := net.Pipe()
	c := NewConn("a1", hostSide, 0, 0, discardLogger())
	c.Close()

	_, err := c.RoundTrip(context.Background(), &protocol.Request{Seq: 1})
	require.ErrorIs(t, err, ErrAgentUnavailable)
}
