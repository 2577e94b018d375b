package agent

import (
	"context"
	"sync"
	"time"

	"github.com/sit-kite/kite-server/internal/protocol"
	"github.com/sit-kite/kite-server/internal/version"
)

// HandlerFunc services one remote operation. Returning an error produces a
// non-zero response code carrying the error text back to the host.
type HandlerFunc func(ctx context.Context, req protocol.RequestPayload) (protocol.ResponsePayload, error)

// Registry maps payload kinds to their handlers. Business handlers (library
// search, score lookup and the like) are registered by the embedding
// process; ping and agent-info are built in.
type Registry struct {
	mu       sync.RWMutex
	handlers map[protocol.Kind]HandlerFunc
}

// NewRegistry returns a registry preloaded with the built-in ping and
// agent-info handlers.
func NewRegistry(name string) *Registry {
	r := &Registry{handlers: make(map[protocol.Kind]HandlerFunc)}
	sampler := newStatsSampler()

	r.Register(protocol.KindPing, func(ctx context.Context, req protocol.RequestPayload) (protocol.ResponsePayload, error) {
		ping := req.(*protocol.PingRequest)
		return &protocol.PingResponse{
			SentAt:    ping.SentAt,
			RepliedAt: time.Now().UnixNano(),
			Stats:     sampler.sample(ctx),
		}, nil
	})
	r.Register(protocol.KindAgentInfo, func(ctx context.Context, req protocol.RequestPayload) (protocol.ResponsePayload, error) {
		return &protocol.AgentInfoResponse{
			Name:    name,
			Version: version.Version,
			Stats:   sampler.sample(ctx),
		}, nil
	})
	return r
}

// Register installs fn for kind, replacing any previous handler.
func (r *Registry) Register(kind protocol.Kind, fn HandlerFunc) {
	r.mu.Lock()
	r.handlers[kind] = fn
	r.mu.Unlock()
}

func (r *Registry) lookup(kind protocol.Kind) (HandlerFunc, bool) {
	r.mu.RLock()
	fn, ok := r.handlers[kind]
	r.mu.RUnlock()
	return fn, ok
}
