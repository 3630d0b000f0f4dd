package sniffer

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
)

// MockScanner simulates discovery on a fake /24 so the control surface can
// be exercised without capture privileges or a real interface.
type MockScanner struct {
	registry ports.DeviceRegistry
	sender   *MockSender

	mu      sync.RWMutex
	netInfo domain.NetworkInfo
}

// MockSender records frames instead of transmitting them.
type MockSender struct {
	mu     sync.Mutex
	Frames [][]byte
}

func (s *MockSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	return nil
}

// Sent returns a snapshot of recorded frames.
func (s *MockSender) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.Frames))
	copy(out, s.Frames)
	return out
}

var mockHosts = []struct {
	mac string
	ip  string
}{
	{"aa:bb:cc:dd:ee:01", "192.168.1.1"},
	{"aa:bb:cc:dd:ee:05", "192.168.1.5"},
	{"b8:27:eb:12:34:56", "192.168.1.23"},
	{"3c:22:fb:aa:bb:cc", "192.168.1.42"},
	{"52:54:00:de:ad:01", "192.168.1.77"},
}

var _ ports.Scanner = (*MockScanner)(nil)

// NewMockScanner creates a simulated scanner over 192.168.1.0/24.
func NewMockScanner(registry ports.DeviceRegistry) *MockScanner {
	return &MockScanner{
		registry: registry,
		sender:   &MockSender{},
		netInfo: domain.NetworkInfo{
			NetworkRange: "192.168.1.0/24",
			Gateway:      "192.168.1.1",
		},
	}
}

func (m *MockScanner) Start(ctx context.Context) error {
	// Periodically re-observe the fake hosts so liveness stays green.
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.seed(ctx)
		}
	}
}

func (m *MockScanner) Scan(ctx context.Context) error {
	log.Printf("[MOCK] Simulated sweep of %s", m.netInfo.NetworkRange)
	m.seed(ctx)
	m.mu.Lock()
	m.netInfo.ActiveDevices = m.registry.ActiveCount(ctx)
	m.mu.Unlock()
	return nil
}

func (m *MockScanner) seed(ctx context.Context) {
	now := time.Now()
	for _, h := range mockHosts {
		mac, _ := net.ParseMAC(h.mac)
		m.registry.UpsertObserved(ctx, mac, net.ParseIP(h.ip), now)
	}
}

func (m *MockScanner) Scanning() bool { return false }

func (m *MockScanner) NetworkInfo() domain.NetworkInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.netInfo
}

func (m *MockScanner) Interface() domain.Interface {
	mac, _ := net.ParseMAC("02:00:00:00:00:01")
	_, network, _ := net.ParseCIDR("192.168.1.0/24")
	return domain.Interface{
		Name:    "mock0",
		MAC:     mac,
		IP:      net.IPv4(192, 168, 1, 10).To4(),
		Network: network,
	}
}

func (m *MockScanner) Gateway() (net.IP, net.HardwareAddr) {
	mac, _ := net.ParseMAC(mockHosts[0].mac)
	return net.ParseIP(mockHosts[0].ip).To4(), mac
}

func (m *MockScanner) Claims() map[string][]string {
	claims := make(map[string][]string, len(mockHosts))
	for _, h := range mockHosts {
		claims[h.mac] = []string{h.ip}
	}
	return claims
}

func (m *MockScanner) Sender() ports.FrameSender { return m.sender }

func (m *MockScanner) Close() {}
