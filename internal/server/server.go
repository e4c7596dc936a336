// Package server exposes the HTTP API: generation (JSON or SSE) and
// conversation history.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"promptforge/internal/app"
	"promptforge/internal/util"
	"promptforge/pkg/domain"
	"promptforge/pkg/store"
)

const maxRequestBody = 32 << 20 // uploads arrive inline as data URLs

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
}

// Server exposes HTTP endpoints for the generation service.
type Server struct {
	app *app.App
	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("promptforge", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/history", s.handleHistory)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Prompt         string                `json:"prompt"`
	ExistingFiles  domain.FileState      `json:"existingFiles"`
	UploadedFiles  []domain.UploadedFile `json:"uploadedFiles"`
	Streaming      bool                  `json:"streaming"`
	UserID         string                `json:"userId"`
	ConversationID string                `json:"conversationId"`
	IsIterative    bool                  `json:"isIterativeUpdate"`
}

type generateResponse struct {
	Files          domain.FileState    `json:"files"`
	FullFiles      domain.FileState    `json:"fullFiles"`
	ChangedFiles   []domain.FileChange `json:"changedFiles"`
	ConversationID string              `json:"conversationId"`
	UserID         string              `json:"userId"`
	IsIterative    bool                `json:"isIterativeUpdate"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" && len(req.UploadedFiles) == 0 {
		writeError(w, http.StatusBadRequest, "prompt or uploadedFiles required")
		return
	}

	appReq := app.Request{
		Prompt:         req.Prompt,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		IsIterative:    req.IsIterative,
		ExistingFiles:  req.ExistingFiles,
		UploadedFiles:  req.UploadedFiles,
	}

	if !req.Streaming {
		result, err := s.app.Generate(r.Context(), appReq, nil)
		if err != nil {
			writeGenerateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, generateResponse{
			Files:          result.Files,
			FullFiles:      result.Files,
			ChangedFiles:   result.Changes,
			ConversationID: result.ConversationID,
			UserID:         result.UserID,
			IsIterative:    result.Iterative,
		})
		return
	}

	sink, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.app.Generate(r.Context(), appReq, sink); err != nil {
		slog.Error("generation failed", "error", err, "request_id", util.RequestIDFromRequest(r))
		if !sink.Started() {
			writeGenerateError(w, err)
			return
		}
		// Headers are out; the failure travels as a terminal error event.
		_ = sink.Emit(domain.StreamEvent{Type: domain.EventError, Error: err.Error()})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversationId"))
	convs, err := s.app.History(r.Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conversationID != "" {
		writeJSON(w, http.StatusOK, convs[0])
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// writeGenerateError maps pipeline failures onto HTTP statuses before the
// stream has started.
func writeGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, store.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
