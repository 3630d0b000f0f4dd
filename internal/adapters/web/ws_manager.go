package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/services/network"
)

// allowedOrigins enumerates the loopback origins for the configured listen
// address, so the check follows the -addr flag instead of assuming 8080.
func allowedOrigins(addr string) []string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		port = "8080"
	}
	return []string{
		"http://localhost:" + port,
		"http://127.0.0.1:" + port,
		"http://[::1]:" + port,
	}
}

// WSMessage is the envelope for every frame pushed to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager pushes device snapshots, single-device deltas, and warnings to
// connected browsers.
type WSManager struct {
	Service  *network.Service
	Clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	mu       sync.Mutex
}

// NewWSManager creates a new manager over the network service. addr is the
// server's listen address; only loopback origins on its port may connect.
func NewWSManager(service *network.Service, addr string) *WSManager {
	origins := allowedOrigins(addr)
	return &WSManager{
		Service: service,
		Clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow same-origin (no Origin header)
				if origin == "" {
					return true
				}
				for _, allowed := range origins {
					if origin == allowed {
						return true
					}
				}

				log.Printf("WebSocket: Rejected origin: %s", origin)
				return false
			},
		},
	}
}

// Start runs the periodic snapshot broadcaster.
func (m *WSManager) Start(ctx context.Context) {
	go m.processAndBroadcast(ctx)
}

// HandleWebSocket upgrades the connection and tracks it until it drops.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.Clients[conn] = true
	m.mu.Unlock()

	// Clean up on disconnect. Clients never send anything meaningful; the
	// read loop only notices the close.
	go func() {
		defer conn.Close()
		defer func() {
			m.mu.Lock()
			delete(m.Clients, conn)
			m.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (m *WSManager) processAndBroadcast(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcastSnapshot(ctx)
		}
	}
}

func (m *WSManager) broadcastSnapshot(ctx context.Context) {
	m.broadcast(WSMessage{Type: "devices", Payload: m.Service.Devices(ctx)})
}

// BroadcastDevice pushes a single-device delta, used for instant feedback
// on new discoveries and kill/restore transitions.
func (m *WSManager) BroadcastDevice(rec domain.DeviceRecord) {
	m.broadcast(WSMessage{Type: "device", Payload: rec})
}

// BroadcastLog pushes an engine log line to all clients.
func (m *WSManager) BroadcastLog(msg, level string) {
	m.broadcast(WSMessage{Type: "log", Payload: map[string]string{
		"message": msg,
		"level":   level,
	}})
}

// BroadcastWarning pushes an advisory warning to all clients.
func (m *WSManager) BroadcastWarning(w domain.Warning) {
	m.broadcast(WSMessage{Type: "warning", Payload: w})
}

func (m *WSManager) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}

	m.mu.Lock()
	for conn := range m.Clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Println("Write error:", err)
			conn.Close()
			delete(m.Clients, conn)
		}
	}
	m.mu.Unlock()
}

// OnDeviceAdded implements the registry observer for new discoveries.
func (m *WSManager) OnDeviceAdded(ctx context.Context, rec domain.DeviceRecord) {
	m.BroadcastDevice(rec)
}

// OnDeviceUpdated is a no-op: updates fire on every inbound frame, far too
// chatty for per-event pushes. The periodic snapshot covers them.
func (m *WSManager) OnDeviceUpdated(ctx context.Context, rec domain.DeviceRecord) {}
