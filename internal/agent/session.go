package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sit-kite/kite-server/internal/protocol"
)

// session serves one live connection to the host: a read loop decodes
// request frames and each request is handled on its own goroutine, so one
// slow scrape never blocks the others. Responses share the socket behind a
// write mutex.
type session struct {
	agent   *Agent
	conn    net.Conn
	logger  *slog.Logger
	writeMu sync.Mutex
}

func newSession(agent *Agent, conn net.Conn) *session {
	return &session{
		agent:  agent,
		conn:   conn,
		logger: agent.logger.With("session", time.Now().UnixNano()),
	}
}

func (s *session) run(ctx context.Context) error {
	defer s.conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	for {
		req, err := protocol.ReadRequest(s.conn, s.agent.opts.MaxPayload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(ctx, req)
	}
}

func (s *session) handle(ctx context.Context, req *protocol.Request) {
	payload, err := protocol.UnmarshalRequestPayload(req.Body)
	if err != nil {
		s.logger.Warn("undecodable request", "seq", req.Seq, "error", err)
		s.reply(protocol.NewErrorResponse(req.Seq, protocol.CodeBadPayload, err.Error()))
		return
	}

	kind := payload.PayloadKind()
	fn, ok := s.agent.registry.lookup(kind)
	if !ok {
		s.reply(protocol.NewErrorResponse(req.Seq, protocol.CodeUnknownOperation, "unsupported operation: "+kind.String()))
		return
	}

	result, err := fn(ctx, payload)
	if err != nil {
		s.logger.Warn("handler failed", "seq", req.Seq, "kind", kind.String(), "error", err)
		s.reply(protocol.NewErrorResponse(req.Seq, protocol.CodeHandlerError, err.Error()))
		return
	}

	body, err := protocol.MarshalResponsePayload(result)
	if err != nil {
		s.reply(protocol.NewErrorResponse(req.Seq, protocol.CodeHandlerError, err.Error()))
		return
	}
	s.reply(&protocol.Response{Ack: req.Seq, Body: body})
}

func (s *session) reply(resp *protocol.Response) {
	s.writeMu.Lock()
	err := protocol.WriteResponse(s.conn, resp)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Debug("response write failed", "ack", resp.Ack, "error", err)
	}
}
