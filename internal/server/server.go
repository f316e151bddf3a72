// Package server is the HTTP API of a running spawner daemon: agent
// lifecycle, per-agent knowledge and the public R-A-G endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/indexer"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/runtime"
	"github.com/ssd-technologies/spawner/internal/storage"
)

const (
	defaultKnowledgeLimit = 20
	maxKnowledgeLimit     = 200
	defaultRateLimit      = 120
	defaultRateWindow     = time.Minute
)

// Options configures a Server. Runtime and Knowledge are required.
type Options struct {
	Runtime   *runtime.Runtime
	Knowledge *knowledge.Store
	// Archive backs /api/knowledge/history. Nil disables it.
	Archive *storage.DB
	// Hub backs /api/knowledge/stream. Nil disables it.
	Hub *Hub
	// Indexer, when set, adds its counters to /api/stats.
	Indexer *indexer.Indexer
	Logger  *slog.Logger

	RateLimit        int
	RateWindow       time.Duration
	ArchiveRetention time.Duration
}

// Server is the main HTTP server for the spawner API.
type Server struct {
	rt        *runtime.Runtime
	store     *knowledge.Store
	archive   *storage.DB
	hub       *Hub
	indexer   *indexer.Indexer
	logger    *slog.Logger
	retention time.Duration
	started   time.Time

	limiter *rateLimiter
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a new Server with all routes registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = defaultRateWindow
	}
	s := &Server{
		rt:        opts.Runtime,
		store:     opts.Knowledge,
		archive:   opts.Archive,
		hub:       opts.Hub,
		indexer:   opts.Indexer,
		logger:    opts.Logger.With(slog.String("component", "server")),
		retention: opts.ArchiveRetention,
		started:   time.Now(),
		limiter:   newRateLimiter(opts.RateLimit, opts.RateWindow),
		mux:       http.NewServeMux(),
	}
	s.routes()
	s.handler = s.recoverPanics(s.cors(s.rateLimit(s.mux)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	// Agents
	s.mux.HandleFunc("GET /api/agents", s.handleListAgents)
	s.mux.HandleFunc("POST /api/agents", s.handleSpawnAgent)
	s.mux.HandleFunc("POST /api/agents/{id}/stop", s.handleStopAgent)
	s.mux.HandleFunc("POST /api/agents/{id}/pause", s.handlePauseAgent)
	s.mux.HandleFunc("POST /api/agents/{id}/resume", s.handleResumeAgent)
	s.mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)

	// Knowledge
	s.mux.HandleFunc("GET /api/knowledge", s.handleKnowledge)
	s.mux.HandleFunc("GET /api/knowledge/history", s.handleKnowledgeHistory)
	s.mux.HandleFunc("GET /api/knowledge/stream", s.handleKnowledgeStream)

	// R-A-G
	s.ragRoutes()

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// handleHealth reports liveness and process uptime in seconds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "healthy",
		"uptime":    time.Since(s.started).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// agentSummary is the per-agent row of /api/stats.
type agentSummary struct {
	ID            string       `json:"id"`
	Type          agent.Type   `json:"type"`
	Status        agent.Status `json:"status"`
	Owner         string       `json:"owner"`
	SpawnedAt     time.Time    `json:"spawnedAt"`
	LastHeartbeat *time.Time   `json:"lastHeartbeat,omitempty"`
	Running       bool         `json:"running"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.rt.Stats()
	agents := s.rt.ListAgents()
	summaries := make([]agentSummary, 0, len(agents))
	for _, d := range agents {
		summaries = append(summaries, agentSummary{
			ID:            d.ID,
			Type:          d.Type,
			Status:        d.Status,
			Owner:         d.Owner,
			SpawnedAt:     d.SpawnedAt,
			LastHeartbeat: d.LastHeartbeat,
			Running:       s.rt.IsRunning(d.ID),
		})
	}
	data := map[string]any{
		"totalAgents":  st.Total,
		"activeAgents": st.Running,
		"byType":       st.ByType,
		"byStatus":     st.ByStatus,
		"oldestAgent":  st.Oldest,
		"newestAgent":  st.Newest,
		"agents":       summaries,
		"knowledge":    s.store.Stats(),
	}
	if s.indexer != nil {
		data["indexer"] = s.indexer.Stats()
	}
	if s.hub != nil {
		data["streamClients"] = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// statusFor maps runtime errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrUnknownType), errors.Is(err, agent.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrNotRunning), errors.Is(err, agent.ErrNotPaused), errors.Is(err, agent.ErrAlreadyRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
