package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ssd-technologies/spawner/internal/knowledge"
)

const poweredBy = "spawner R-A-G"

func (s *Server) ragRoutes() {
	s.mux.HandleFunc("POST /api/rag/query", s.handleRAGQuery)
	s.mux.HandleFunc("GET /api/rag/wallet", s.handleRAGWallet)
	s.mux.HandleFunc("GET /api/rag/protocol", s.handleRAGProtocol)
	s.mux.HandleFunc("GET /api/rag/market", s.handleRAGMarket)
	s.mux.HandleFunc("GET /api/rag/stats", s.handleRAGStats)
	s.mux.HandleFunc("GET /api/rag/examples", s.handleRAGExamples)
}

type queryResponse struct {
	Success bool   `json:"success"`
	Query   string `json:"query"`
	knowledge.QueryResult
	PoweredBy string `json:"poweredBy"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Info("rag query", slog.String("question", q))
	writeJSON(w, http.StatusOK, queryResponse{
		Success:     true,
		Query:       q,
		QueryResult: s.store.Query(q),
		PoweredBy:   poweredBy,
		Timestamp:   time.Now().UnixMilli(),
	})
}

type walletResponse struct {
	Success bool   `json:"success"`
	Wallet  string `json:"wallet"`
	knowledge.WalletReport
	PoweredBy string `json:"poweredBy"`
}

func (s *Server) handleRAGWallet(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "wallet address is required")
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{
		Success:      true,
		Wallet:       addr,
		WalletReport: s.store.WalletIntelligence(addr),
		PoweredBy:    poweredBy,
	})
}

type protocolResponse struct {
	Success  bool   `json:"success"`
	Protocol string `json:"protocol"`
	knowledge.ProtocolReport
	PoweredBy string `json:"poweredBy"`
}

func (s *Server) handleRAGProtocol(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "protocol name is required")
		return
	}
	writeJSON(w, http.StatusOK, protocolResponse{
		Success:        true,
		Protocol:       name,
		ProtocolReport: s.store.ProtocolIntelligence(name),
		PoweredBy:      poweredBy,
	})
}

type marketResponse struct {
	Success bool `json:"success"`
	knowledge.MarketReport
	PoweredBy string `json:"poweredBy"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleRAGMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marketResponse{
		Success:      true,
		MarketReport: s.store.MarketIntelligence(),
		PoweredBy:    poweredBy,
		Timestamp:    time.Now().UnixMilli(),
	})
}

type statsResponse struct {
	Success bool `json:"success"`
	knowledge.Stats
	PoweredBy string `json:"poweredBy"`
}

func (s *Server) handleRAGStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Success:   true,
		Stats:     s.store.Stats(),
		PoweredBy: poweredBy,
	})
}

func (s *Server) handleRAGExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"examples": knowledge.Examples(),
		"usage": map[string]any{
			"endpoint": "POST /api/rag/query",
			"body":     map[string]string{"question": "Your natural language question here"},
		},
	})
}
