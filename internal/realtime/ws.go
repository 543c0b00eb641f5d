package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"browser-steps/internal/dispatch"
	"browser-steps/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The executor is a browser extension with its own origin.
	},
}

// wsEmitter writes events as WebSocket text frames. Only the dispatch loop
// goroutine writes data frames.
type wsEmitter struct {
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(evt protocol.Event) error {
	data, err := evt.Encode()
	if err != nil {
		return err
	}
	e.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return e.conn.WriteMessage(websocket.TextMessage, data)
}

func (e *wsEmitter) Heartbeat() error {
	return e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
}

// handleWebSocket streams commands over a WebSocket. The executor may send
// result reports back on the same socket instead of posting them.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	connID, ok := s.openSession(w)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sessions.Close(connID)
		slog.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readPump(ctx, conn, cancel)

	slog.Info("stream opened", "transport", "websocket", "connection_id", connID, "remote", r.RemoteAddr)

	// Pings keep the read deadline alive.
	opts := s.opts
	if opts.KeepAlive <= 0 || opts.KeepAlive >= readDeadline {
		opts.KeepAlive = pingInterval
	}

	err = dispatch.New(connID, s.sessions, &wsEmitter{conn: conn}, opts).Run(ctx)
	if err == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "all commands completed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
	}
	logStreamEnd("websocket", connID, err)
}

// readPump reads result reports until the connection fails, then cancels
// the stream.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(s.maxBody)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		req, err := protocol.ValidateCommandResult(message)
		if err != nil {
			slog.Warn("invalid result report on websocket", "error", err)
			continue
		}
		if err := s.intake.Submit(ctx, *req); err != nil {
			return
		}
	}
}
