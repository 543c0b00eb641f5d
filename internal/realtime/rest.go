package realtime

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"browser-steps/internal/analysis"
	"browser-steps/internal/protocol"
	"browser-steps/internal/session"
)

// maxResultBytes bounds a result report; page captures can be large.
const maxResultBytes = 32 << 20

type commandsResponse struct {
	Commands []session.Command `json:"commands"`
	session.Counts
}

type analysesResponse struct {
	Analyses []analysis.Record `json:"analyses"`
	Total    int               `json:"total"`
}

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Total    int            `json:"total"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending := s.templates.PendingCount()
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:            "healthy",
		Server:            ServerName,
		CommandsPending:   pending,
		PendingCount:      pending,
		ActiveConnections: s.sessions.Count(),
		Timestamp:         unixSeconds(s.now()),
	})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	cmds := s.templates.Snapshot()
	writeJSON(w, http.StatusOK, commandsResponse{
		Commands: cmds,
		Counts:   s.templates.Counts(),
	})
}

func (s *Server) handleCommandResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := protocol.ValidateCommandResult(body)
	if err != nil {
		if errors.Is(err, protocol.ErrMissingCommandID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.intake.Submit(r.Context(), *req); err != nil {
		slog.Warn("command result not applied", "command_id", req.CommandID, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, protocol.ReceivedResponse{Status: "received"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n := s.Reset()
	writeJSON(w, http.StatusOK, protocol.ResetResponse{Status: "reset", Commands: n})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.intake.Result(id)
	if !ok {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	recs := s.intake.Analyses()
	writeJSON(w, http.StatusOK, analysesResponse{Analyses: recs, Total: len(recs)})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.intake.Analysis(id)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.List()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: infos, Total: len(infos)})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.History()
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: infos, Total: len(infos)})
}
