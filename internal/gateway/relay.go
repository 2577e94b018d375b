package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// relayHandler is the double-hop SSO proxy: a client opens a websocket to
// the gateway, the gateway opens a plain TCP connection to the SSO server,
// and raw bytes flow both ways. The TLS session lives between the client
// and the SSO server; the gateway only shuttles opaque record bytes and
// never sees credentials in the clear on this path.
type relayHandler struct {
	target      string
	dialTimeout time.Duration
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func newRelayHandler(target string, logger *slog.Logger) *relayHandler {
	return &relayHandler{
		target:      target,
		dialTimeout: 10 * time.Second,
		logger:      logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: false,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *relayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	conn, err := (&net.Dialer{Timeout: h.dialTimeout}).Dial("tcp", h.target)
	if err != nil {
		h.logger.Warn("relay dial failed", "target", h.target, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	defer conn.Close()

	h.logger.Debug("relay opened", "remote", r.RemoteAddr, "target", h.target)
	done := make(chan struct{}, 2)

	// websocket -> upstream
	go func() {
		defer func() { done <- struct{}{} }()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
				continue
			}
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
	}()

	// upstream -> websocket
	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, 32<<10)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				}
				return
			}
		}
	}()

	// Whichever side closes first tears down the other through the
	// deferred closes.
	<-done
	h.logger.Debug("relay closed", "remote", r.RemoteAddr)
}
