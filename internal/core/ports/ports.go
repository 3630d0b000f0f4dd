package ports

import (
	"context"
	"net"
	"time"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
)

// FrameSender writes a raw Ethernet frame to the wire. Implementations must
// be safe for concurrent use: the sweep and the poison loop share one send
// handle per interface.
type FrameSender interface {
	Send(frame []byte) error
}

// Scanner is the discovery engine surface consumed by the network service.
type Scanner interface {
	// Start runs the continuous listener. It blocks until ctx is cancelled
	// or the receive channel fails fatally.
	Start(ctx context.Context) error
	// Scan triggers one subnet sweep. A sweep already in progress makes
	// this a no-op; the listener is unaffected either way.
	Scan(ctx context.Context) error
	Scanning() bool
	NetworkInfo() domain.NetworkInfo
	Interface() domain.Interface
	// Gateway returns the default gateway address and its hardware address
	// as far as either has been resolved; nil values mean unresolved.
	Gateway() (net.IP, net.HardwareAddr)
	// Claims returns, per sender hardware address, the set of IPs it
	// claimed in ARP replies during the most recent sweep.
	Claims() map[string][]string
	Sender() FrameSender
	Close()
}

// DeviceRegistry is the concurrent identity-to-record map.
type DeviceRegistry interface {
	UpsertObserved(ctx context.Context, mac net.HardwareAddr, ip net.IP, seen time.Time) (domain.DeviceRecord, bool)
	UpdateIdentity(ctx context.Context, mac, hostname, vendor string)
	GetDevice(ctx context.Context, mac string) (domain.DeviceRecord, bool)
	FindByIP(ctx context.Context, ip string) (domain.DeviceRecord, bool)
	GetAllDevices(ctx context.Context) []domain.DeviceRecord
	MarkStale(ctx context.Context, now time.Time, timeout time.Duration) int
	SetSelected(ctx context.Context, mac string, selected bool) (domain.DeviceRecord, bool)
	SetKilled(ctx context.Context, mac string, killed bool) (domain.DeviceRecord, bool)
	ActiveCount(ctx context.Context) int
}

// AuditRepository persists operator actions.
type AuditRepository interface {
	SaveAuditEntry(entry domain.AuditEntry) error
	ListAuditEntries(limit int) ([]domain.AuditEntry, error)
}
