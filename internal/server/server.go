// Package server is the thin HTTP shell around the core: request parsing,
// status codes, and JSON shapes. All retrieval and ingestion behavior
// lives behind it.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/reporag/internal/answer"
	"github.com/Aman-CERP/reporag/internal/config"
	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/ingest"
	"github.com/Aman-CERP/reporag/internal/job"
	"github.com/Aman-CERP/reporag/internal/search"
)

// Server wires the HTTP surface to the job controller, the retrieval
// engine, and the answerer.
type Server struct {
	jobs     *job.Controller
	engine   *search.Engine
	answerer *answer.Answerer
	router   chi.Router
}

// New creates the HTTP shell.
func New(jobs *job.Controller, engine *search.Engine, answerer *answer.Answerer) *Server {
	s := &Server{
		jobs:     jobs,
		engine:   engine,
		answerer: answerer,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/index_repo", s.handleIndexRepo)
	r.Get("/progress", s.handleProgress)
	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type indexRepoRequest struct {
	RepoURL string `json:"repo_url"`
}

// handleIndexRepo accepts an ingestion request and returns immediately.
func (s *Server) handleIndexRepo(w http.ResponseWriter, r *http.Request) {
	var req indexRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RepoURL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "repo_url is required"})
		return
	}

	if err := s.jobs.Start(r.Context(), req.RepoURL); err != nil {
		if errors.IsKind(err, errors.KindConflict) {
			writeJSON(w, http.StatusConflict, map[string]any{"detail": "indexing in progress"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":  "repository ingestion started",
		"repo_url": req.RepoURL,
		"status":   "accepted",
	})
}

// handleProgress returns the current job snapshot.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.jobs.Progress()

	resp := map[string]any{
		"progress":    snap.Progress,
		"stage":       snap.Stage,
		"in_progress": snap.InProgress,
	}
	if snap.RepoURL != "" {
		resp["repo_url"] = snap.RepoURL
	}
	if snap.Result != nil {
		resp["result"] = map[string]any{
			"success":    snap.Result.Success,
			"fileCount":  snap.Result.FileCount,
			"chunkCount": snap.Result.ChunkCount,
		}
	}
	if snap.Error != nil {
		resp["error"] = string(snap.Error.Kind) + ": " + snap.Error.Message
	}

	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// handleChat answers a question against the last indexed repository.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "query is required"})
		return
	}

	snap := s.jobs.Progress()
	if snap.RepoURL == "" {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "no repository indexed"})
		return
	}
	namespace := ingest.NamespaceForURL(snap.RepoURL)

	result, err := s.engine.Retrieve(r.Context(), namespace, req.Query)
	if err != nil {
		slog.Error("retrieval failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{"detail": "retrieval failed"})
		return
	}

	ans, err := s.answerer.Answer(r.Context(), namespace, req.Query, req.Model, result)
	if err != nil {
		slog.Error("answer failed",
			slog.String("kind", string(errors.KindOf(err))),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{"detail": "answer generation failed"})
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// handleHealth reports service and environment readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	envConfigured := os.Getenv(config.EnvVectorStoreAPIKey) != "" &&
		os.Getenv(config.EnvLLMAPIKey) != ""

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"env_configured": envConfigured,
		"services": map[string]bool{
			"ingestion": s.jobs != nil,
			"rag":       s.engine != nil && s.answerer != nil,
		},
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write response", slog.String("error", err.Error()))
	}
}
