package realtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"browser-steps/internal/dispatch"
	"browser-steps/internal/protocol"
	"browser-steps/internal/session"
)

// sseEmitter writes events as Server-Sent Events frames.
type sseEmitter struct {
	w       io.Writer
	flusher http.Flusher
}

func (e *sseEmitter) Emit(evt protocol.Event) error {
	data, err := evt.Encode()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Heartbeat writes an SSE comment line, which clients ignore.
func (e *sseEmitter) Heartbeat() error {
	if _, err := io.WriteString(e.w, ": ping\n\n"); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// openSession registers a stream connection, answering the request itself
// when that is not possible.
func (s *Server) openSession(w http.ResponseWriter) (string, bool) {
	connID, err := s.sessions.Open()
	if err != nil {
		if errors.Is(err, session.ErrMaxSessions) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return "", false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return "", false
	}
	return connID, true
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	connID, ok := s.openSession(w)
	if !ok {
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Info("stream opened", "transport", "sse", "connection_id", connID, "remote", r.RemoteAddr)

	loop := dispatch.New(connID, s.sessions, &sseEmitter{w: w, flusher: flusher}, s.opts)
	logStreamEnd("sse", connID, loop.Run(r.Context()))
}

func logStreamEnd(transport, connID string, err error) {
	switch {
	case err == nil:
		slog.Info("stream closed", "transport", transport, "connection_id", connID)
	case dispatch.IsDisconnect(err):
		slog.Info("stream disconnected", "transport", transport, "connection_id", connID)
	default:
		slog.Info("stream ended", "transport", transport, "connection_id", connID, "error", err)
	}
}
