package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"browser-steps/internal/dispatch"
	"browser-steps/internal/intake"
	"browser-steps/internal/protocol"
	"browser-steps/internal/session"
)

// ServerName is reported by the health endpoint; the extension uses it
// for server discovery.
const ServerName = "Browser Steps SSE Server"

// Server exposes the command streams and the REST endpoints.
type Server struct {
	templates *session.TemplateStore
	sessions  *session.Manager
	intake    *intake.Intake
	opts      dispatch.Options
	maxBody   int64
	now       func() time.Time
}

// New creates a new realtime server.
func New(templates *session.TemplateStore, sessions *session.Manager, in *intake.Intake, opts dispatch.Options) *Server {
	return &Server{
		templates: templates,
		sessions:  sessions,
		intake:    in,
		opts:      opts,
		maxBody:   maxResultBytes,
		now:       time.Now,
	}
}

// Handler returns an http.Handler with all routes configured. Every route
// is served at the path the extension uses and at a short alias.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Command streams.
	mux.HandleFunc("GET /stream/browser-commands", s.handleSSE)
	mux.HandleFunc("GET /stream/commands", s.handleSSE)
	mux.HandleFunc("GET /ws/browser-commands", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("GET /api/commands", s.handleCommands)
	mux.HandleFunc("GET /commands", s.handleCommands)
	mux.HandleFunc("POST /api/command-result", s.handleCommandResult)
	mux.HandleFunc("POST /command-result", s.handleCommandResult)
	mux.HandleFunc("POST /api/reset-commands", s.handleReset)
	mux.HandleFunc("POST /reset-commands", s.handleReset)
	mux.HandleFunc("GET /api/results/{id}", s.handleGetResult)
	mux.HandleFunc("GET /api/analysis", s.handleListAnalyses)
	mux.HandleFunc("GET /api/analysis/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/history", s.handleSessionHistory)

	return corsMiddleware(mux)
}

// Reset clears stored results and analyses and puts the canonical sequence
// and every open session back to pending. It returns the length of the
// canonical sequence.
func (s *Server) Reset() int {
	s.intake.Reset()
	s.templates.Reset()
	n := s.sessions.ResetAll()
	slog.Info("commands reset to pending", "open_sessions", n)
	return s.templates.Len()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

// unixSeconds renders t the way the executor expects timestamps.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
