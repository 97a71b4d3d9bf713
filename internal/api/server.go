// Package api exposes the HTTP surface of the sync engine: the
// websocket endpoint plus a couple of operational ones.
package api

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillvault/syncwire/synclib"
)

// Server routes HTTP traffic to the sync manager.
type Server struct {
	manager    *synclib.Manager
	logger     synclib.Logger
	httpServer *http.Server
}

// NewServer builds a server with three endpoints: /ws for websocket
// upgrades, /healthz for liveness probes and /stats for a JSON snapshot
// of the connection registries.
func NewServer(manager *synclib.Manager, logger synclib.Logger) *Server {
	srv := &Server{
		manager: manager,
		logger:  logger.Named("api"),
	}

	router := mux.NewRouter()
	router.Handle("/ws", manager).Methods(http.MethodGet)
	router.HandleFunc("/healthz", srv.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)

	srv.httpServer = &http.Server{
		Handler: router,
	}

	return srv
}

// Serve runs the server on a given listener until Close is called.
func (s *Server) Serve(listener net.Listener) error {
	return s.httpServer.Serve(listener) //nolint: wrapcheck
}

// Close shuts the server down without waiting for inflight requests.
// Websocket connections are owned by the manager and are closed there.
func (s *Server) Close() error {
	return s.httpServer.Close() //nolint: wrapcheck
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint: errcheck
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.manager.ConnectionStats()); err != nil {
		s.logger.WarningError("cannot encode stats", err)
	}
}
