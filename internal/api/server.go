// Package api serves read-only settlement state over HTTP plus a
// websocket stream of periodic summaries. GET endpoints are public;
// the control endpoints require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tarrenhall/ashgrove/internal/engine"
	"github.com/tarrenhall/ashgrove/internal/sim"
)

// Server serves the settlement state.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Addr     string
	AdminKey string // Bearer token for control endpoints. Empty = disabled.

	// SaveFunc persists a full snapshot when the admin asks for one.
	SaveFunc func(ctx context.Context) error

	stream *streamHub
	srv    *http.Server
}

// Start begins serving in a background goroutine and starts the
// stream broadcaster.
func (s *Server) Start() {
	s.stream = newStreamHub(s.Sim)
	go s.stream.run()

	connectLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.handleAgent)
	mux.HandleFunc("GET /api/v1/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/v1/markets/{id}/orders", s.handleMarketOrders)
	mux.HandleFunc("GET /api/v1/buildings", s.handleBuildings)
	mux.HandleFunc("GET /api/v1/orders", s.handleConstructionOrders)
	mux.HandleFunc("GET /api/v1/world", s.handleWorld)
	mux.HandleFunc("GET /api/v1/currency", s.handleCurrency)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/stream", RateLimitMiddleware(connectLimiter, s.stream.handleConnect))
	mux.HandleFunc("POST /api/v1/save", s.adminOnly(s.handleSave))

	s.srv = &http.Server{Addr: s.Addr, Handler: mux}
	go func() {
		slog.Info("api listening", "addr", s.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "err", err)
		}
	}()
}

// Shutdown stops the HTTP server and the stream broadcaster.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stream != nil {
		s.stream.stop()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "control endpoints disabled", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fast, slow, verySlow := s.Eng.Ticks()
	writeJSON(w, map[string]any{
		"fast_ticks":      fast,
		"slow_ticks":      slow,
		"very_slow_ticks": verySlow,
		"population":      s.Sim.Roster.Living(),
		"money_supply":    s.Sim.Currency.Supply(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.Sim.Roster.Snapshot()
	writeJSON(w, agents)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var id sim.AgentID
	if err := id.UnmarshalText([]byte(r.PathValue("id"))); err != nil {
		http.Error(w, "bad agent id", http.StatusBadRequest)
		return
	}
	a, ok := s.Sim.Roster.Get(id)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Markets.Snapshot())
}

func (s *Server) handleMarketOrders(w http.ResponseWriter, r *http.Request) {
	var id sim.MarketID
	if err := id.UnmarshalText([]byte(r.PathValue("id"))); err != nil {
		http.Error(w, "bad market id", http.StatusBadRequest)
		return
	}
	buys, sells := s.Sim.Markets.OpenOrders(id)
	writeJSON(w, map[string]any{"buys": buys, "sells": sells})
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Buildings.Snapshot())
}

func (s *Server) handleConstructionOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Orders.Snapshot())
}

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.World.Snapshot())
}

func (s *Server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Currency.Stats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Events())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.SaveFunc == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.SaveFunc(r.Context()); err != nil {
		slog.Error("snapshot failed", "err", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true, "at": time.Now().UTC().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
