package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/lankill/internal/core/services/network"
)

// Server exposes the REST control surface and the WebSocket push channel.
type Server struct {
	Addr      string
	Service   *network.Service
	WSManager *WSManager

	// baseCtx outlives individual requests; background work started by a
	// handler (scans) must not die with the request.
	baseCtx context.Context
	srv     *http.Server
}

// NewServer creates a new web server.
func NewServer(addr string, service *network.Service, wsManager *WSManager) *Server {
	return &Server{
		Addr:      addr,
		Service:   service,
		WSManager: wsManager,
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/network", s.handleNetworkInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodPost)

	r.HandleFunc("/api/devices/{mac}", s.handleGetDevice).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{mac}/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{mac}/kill", s.handleKill).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{mac}/restore", s.handleRestore).Methods(http.MethodPost)

	r.HandleFunc("/api/kill-all", s.handleKillAll).Methods(http.MethodPost)
	r.HandleFunc("/api/restore-all", s.handleRestoreAll).Methods(http.MethodPost)

	r.HandleFunc("/api/audit", s.handleAuditLog).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return otelhttp.NewHandler(r, "lankill-web")
}

// Run starts the server, the snapshot broadcaster, and the warning pump,
// blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	s.srv = &http.Server{
		Addr:    s.Addr,
		Handler: s.routes(),
	}

	s.WSManager.Start(ctx)
	go s.pumpWarnings(ctx)

	go func() {
		<-ctx.Done()
		log.Println("Web server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// pumpWarnings forwards advisory warnings from the service to all
// WebSocket clients.
func (s *Server) pumpWarnings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.Service.Warnings():
			s.WSManager.BroadcastWarning(w)
		}
	}
}
