package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ssd-technologies/spawner/internal/agent"
)

type spawnRequest struct {
	Type       agent.Type     `json:"type"`
	Owner      string         `json:"owner"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.rt.ListAgents(),
		"running": s.rt.RunningIDs(),
	})
}

// handleSpawnAgent handles POST /api/agents. A start failure after the agent
// was registered still reports the id so the caller can inspect or delete it.
func (s *Server) handleSpawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = "anonymous"
	}

	id, err := s.rt.SpawnAgent(r.Context(), req.Type, owner, req.Parameters)
	if err != nil {
		if id == "" {
			writeError(w, statusFor(err), err.Error())
			return
		}
		s.logger.Warn("spawned agent failed to start", slog.String("agent_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"id":      id,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r.PathValue("id"), "stopped", s.rt.StopAgent)
}

func (s *Server) handlePauseAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r.PathValue("id"), "paused", s.rt.PauseAgent)
}

func (s *Server) handleResumeAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r.PathValue("id"), "resumed", func(id string) error {
		return s.rt.ResumeAgent(r.Context(), id)
	})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r.PathValue("id"), "deleted", s.rt.DeleteAgent)
}

func (s *Server) lifecycle(w http.ResponseWriter, id, done string, op func(string) error) {
	if err := op(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id, "status": done})
}

type agentKnowledge struct {
	AgentID   string                 `json:"agentId"`
	AgentType agent.Type             `json:"agentType"`
	Knowledge []agent.KnowledgeEntry `json:"knowledge"`
}

// handleKnowledge handles GET /api/knowledge: the most recent entries of
// every running agent, or of one agent when ?agent= is given.
func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	ids := s.rt.RunningIDs()
	if only := r.URL.Query().Get("agent"); only != "" {
		ids = []string{only}
	}

	out := []agentKnowledge{}
	for _, id := range ids {
		entries := s.rt.AgentKnowledge(id)
		if len(entries) == 0 {
			continue
		}
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		d, _ := s.rt.Get(id)
		out = append(out, agentKnowledge{AgentID: id, AgentType: d.Type, Knowledge: entries})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

// handleKnowledgeHistory handles GET /api/knowledge/history, reading the
// sqlite archive rather than the in-memory logs.
func (s *Server) handleKnowledgeHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "knowledge archive is disabled")
		return
	}
	id := r.URL.Query().Get("agent")
	if id == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := s.archive.History(id, limit)
	if err != nil {
		s.logger.Error("knowledge history", slog.String("agent_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read knowledge history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agentId": id, "data": entries})
}

// parseLimit reads ?limit=, defaulting to 20 and capped at 200. Anything
// that is not a positive integer is rejected with a 400.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultKnowledgeLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxKnowledgeLimit), true
}
