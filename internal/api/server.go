// Package api exposes the cluster over HTTP for monitoring and
// administration: server membership, cache operations, stats, and a
// websocket stream of live aggregate stats. This is a client-facing
// surface; servers never talk to each other over it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zde37/ringcache/internal/cluster"
	"github.com/zde37/ringcache/pkg"
)

// Server is the HTTP monitoring/admin server.
type Server struct {
	cluster    *cluster.Cluster
	httpServer *http.Server
	wsHub      *Hub
	logger     *pkg.Logger
	interval   time.Duration
	done       chan struct{}
}

// NewServer creates an HTTP server over the given cluster. statsInterval
// controls how often aggregate stats are pushed to websocket clients.
func NewServer(c *cluster.Cluster, statsInterval time.Duration, logger *pkg.Logger) (*Server, error) {
	if c == nil {
		return nil, fmt.Errorf("cluster cannot be nil")
	}
	if logger == nil {
		logger = pkg.GetLogger()
	}
	if statsInterval <= 0 {
		statsInterval = 2 * time.Second
	}

	logger = logger.WithFields(pkg.Fields{"component": "http_api"})

	return &Server{
		cluster:  c,
		wsHub:    NewHub(logger),
		logger:   logger,
		interval: statsInterval,
		done:     make(chan struct{}),
	}, nil
}

// Handler returns the route table. Split out so tests can drive it through
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("POST /api/servers", s.handleAddServer)
	mux.HandleFunc("DELETE /api/servers/{id}", s.handleRemoveServer)
	mux.HandleFunc("POST /api/servers/{id}/fail", s.handleFailServer)
	mux.HandleFunc("POST /api/servers/{id}/recover", s.handleRecoverServer)
	mux.HandleFunc("GET /api/cache/{key}", s.handleGet)
	mux.HandleFunc("PUT /api/cache/{key}", s.handlePut)
	mux.HandleFunc("DELETE /api/cache/{key}", s.handleDelete)
	mux.HandleFunc("POST /api/distribution", s.handleDistribution)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/ws", s.wsHub.HandleWebSocket)

	return corsMiddleware(mux)
}

// Start serves the API on the given port and begins streaming stats to
// websocket clients.
func (s *Server) Start(port int) error {
	go s.wsHub.Run()
	go s.broadcastStats()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Int("port", port).Msg("starting HTTP API server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and the websocket hub.
func (s *Server) Stop() error {
	s.logger.Info().Msg("stopping HTTP API server")

	close(s.done)
	s.wsHub.Stop()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	return nil
}

// broadcastStats pushes an aggregate stats snapshot to every websocket
// client on each tick.
func (s *Server) broadcastStats() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			payload, err := json.Marshal(map[string]any{
				"type": "stats",
				"data": s.cluster.Stats(),
			})
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to marshal stats")
				continue
			}
			s.wsHub.Broadcast(payload)
		case <-s.done:
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cluster.Stats())
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers := s.cluster.ListServers()

	out := make(map[string]any, len(servers))
	for id, srv := range servers {
		out[id] = srv.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	srv, err := s.cluster.AddServer(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, srv.Stats())
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cluster.RemoveServer(id) {
		writeJSON(w, http.StatusNotFound, errorBody("server not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) handleFailServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cluster.SimulateFailure(id) {
		writeJSON(w, http.StatusNotFound, errorBody("server not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"failed": id})
}

func (s *Server) handleRecoverServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cluster.Recover(id) {
		writeJSON(w, http.StatusNotFound, errorBody("server not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recovered": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := s.cluster.Get(key)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": string(value),
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	previous, err := s.cluster.Put(key, []byte(req.Value))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"key": key}
	if previous != nil {
		resp["previous"] = string(previous)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	removed, err := s.cluster.Remove(key)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"key": key}
	if removed != nil {
		resp["removed"] = string(removed)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	writeJSON(w, http.StatusOK, s.cluster.DistributionStats(req.Keys))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.cluster.ClearAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// writeError maps cluster errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pkg.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkg.ErrEmptyKey), errors.Is(err, pkg.ErrEmptyServerID):
		status = http.StatusBadRequest
	case errors.Is(err, pkg.ErrServerExists):
		status = http.StatusConflict
	case errors.Is(err, pkg.ErrNoActiveServer), errors.Is(err, pkg.ErrServerUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(w, r)
	})
}
