// Package api is the aggregator's HTTP surface: health check, debug
// REST endpoints for a market's depth, ticker and recent trades, and
// the WebSocket upgrade route,
// grounded on uhyunpark-hyperlicked/pkg/api/server.go's
// mux-router-plus-rs/cors wiring.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/aggregator"
	"github.com/thecurioussailor/exchangecore/api/ws"
)

type Server struct {
	router *mux.Router
	hub    *ws.Hub
	agg    *aggregator.Aggregator
	log    *zap.Logger
}

func NewServer(agg *aggregator.Aggregator, hub *ws.Hub, log *zap.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		hub:    hub,
		agg:    agg,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.HandleUpgrade)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/markets/{market_id}/depth", s.handleDepth).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market_id}/ticker", s.handleTicker).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market_id}/trades", s.handleTrades).Methods(http.MethodGet)
}

// Handler wraps the router with permissive CORS, since the aggregator
// is read-only market data meant for any browser-based front end.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	marketID := mux.Vars(r)["market_id"]
	snap, ok := s.agg.Depth(marketID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown market")
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	marketID := mux.Vars(r)["market_id"]
	snap, ok := s.agg.Ticker(marketID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown market")
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	marketID := mux.Vars(r)["market_id"]
	trades, ok := s.agg.RecentTrades(marketID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown market")
		return
	}
	respondJSON(w, trades)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
