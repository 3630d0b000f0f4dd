package registry

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
)

const numShards = 16

var _ ports.DeviceRegistry = (*DeviceRegistry)(nil)

var devicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "lankill_devices_tracked_total",
	Help: "The total number of device records held in memory",
})

type deviceShard struct {
	mu      sync.RWMutex
	devices map[string]domain.DeviceRecord
}

// DeviceRegistry implements ports.DeviceRegistry as a sharded concurrent
// map keyed by canonical (lower-case) MAC address. Records are never
// removed: absence from the network reads as StatusInactive.
type DeviceRegistry struct {
	shards  []*deviceShard
	subject *RegistrySubject
}

// NewDeviceRegistry creates a new sharded registry.
func NewDeviceRegistry() *DeviceRegistry {
	r := &DeviceRegistry{
		shards:  make([]*deviceShard, numShards),
		subject: NewRegistrySubject(),
	}
	for i := 0; i < numShards; i++ {
		r.shards[i] = &deviceShard{devices: make(map[string]domain.DeviceRecord)}
	}
	return r
}

// AddObserver registers an observer for device added/updated events.
func (r *DeviceRegistry) AddObserver(obs DeviceObserver) {
	r.subject.AddObserver(obs)
}

// CanonicalMAC normalizes a hardware address to its lower-case string form.
func CanonicalMAC(mac net.HardwareAddr) string {
	return strings.ToLower(mac.String())
}

func (r *DeviceRegistry) getShard(mac string) *deviceShard {
	hash := uint32(0)
	for i := 0; i < len(mac); i++ {
		hash = hash*31 + uint32(mac[i])
	}
	return r.shards[hash%uint32(len(r.shards))]
}

// UpsertObserved records an inbound-frame observation. A new identity is
// created exactly once with a single "added" notification; re-observation
// updates the IP in place, advances LastSeen monotonically, and resurrects
// the record to Active. Poisoning state is untouched: a killed device keeps
// reading Blocked until explicitly restored.
func (r *DeviceRegistry) UpsertObserved(ctx context.Context, mac net.HardwareAddr, ip net.IP, seen time.Time) (domain.DeviceRecord, bool) {
	key := CanonicalMAC(mac)
	if key == "" {
		return domain.DeviceRecord{}, false
	}

	shard := r.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.devices[key]
	if !ok {
		rec = domain.DeviceRecord{
			MAC:       key,
			Hostname:  domain.Unknown,
			Vendor:    domain.Unknown,
			Status:    domain.StatusActive,
			FirstSeen: seen,
			LastSeen:  seen,
		}
		if ip != nil {
			rec.IP = ip.String()
		}
		shard.devices[key] = rec
		devicesTracked.Inc()
		r.subject.NotifyAdded(ctx, rec)
		return rec, true
	}

	if ip != nil && rec.IP != ip.String() {
		// DHCP moved the host; identity stays with the MAC.
		rec.IP = ip.String()
	}
	if seen.After(rec.LastSeen) {
		rec.LastSeen = seen
	}
	if rec.Killed {
		rec.Status = domain.StatusBlocked
	} else {
		rec.Status = domain.StatusActive
	}
	shard.devices[key] = rec
	r.subject.NotifyUpdated(ctx, rec)
	return rec, false
}

// UpdateIdentity fills in best-effort hostname/vendor fields. Empty values
// leave the existing field untouched.
func (r *DeviceRegistry) UpdateIdentity(ctx context.Context, mac, hostname, vendor string) {
	key := strings.ToLower(mac)
	shard := r.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.devices[key]
	if !ok {
		return
	}
	if hostname != "" {
		rec.Hostname = hostname
	}
	if vendor != "" {
		rec.Vendor = vendor
	}
	shard.devices[key] = rec
	r.subject.NotifyUpdated(ctx, rec)
}

func (r *DeviceRegistry) GetDevice(ctx context.Context, mac string) (domain.DeviceRecord, bool) {
	key := strings.ToLower(mac)
	shard := r.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	rec, ok := shard.devices[key]
	return rec, ok
}

// FindByIP returns the record currently holding the given IP, if any.
// Linear over all shards; the registry stays small (one LAN segment).
func (r *DeviceRegistry) FindByIP(ctx context.Context, ip string) (domain.DeviceRecord, bool) {
	for _, shard := range r.shards {
		shard.mu.RLock()
		for _, rec := range shard.devices {
			if rec.IP == ip {
				shard.mu.RUnlock()
				return rec, true
			}
		}
		shard.mu.RUnlock()
	}
	return domain.DeviceRecord{}, false
}

func (r *DeviceRegistry) GetAllDevices(ctx context.Context) []domain.DeviceRecord {
	var all []domain.DeviceRecord
	for _, shard := range r.shards {
		shard.mu.RLock()
		for _, rec := range shard.devices {
			all = append(all, rec)
		}
		shard.mu.RUnlock()
	}
	return all
}

// MarkStale demotes every record whose LastSeen age exceeds timeout to
// Inactive, unless it is killed: a killed-and-silent target reads Blocked.
// Returns the number of records demoted this pass, so the caller logs a
// stale period once instead of every tick.
func (r *DeviceRegistry) MarkStale(ctx context.Context, now time.Time, timeout time.Duration) int {
	demoted := 0
	for _, shard := range r.shards {
		shard.mu.Lock()
		for key, rec := range shard.devices {
			if rec.LastSeen.IsZero() || now.Sub(rec.LastSeen) <= timeout {
				continue
			}
			if rec.Killed {
				if rec.Status != domain.StatusBlocked {
					rec.Status = domain.StatusBlocked
					shard.devices[key] = rec
				}
				continue
			}
			if rec.Status == domain.StatusActive {
				rec.Status = domain.StatusInactive
				shard.devices[key] = rec
				demoted++
			}
		}
		shard.mu.Unlock()
	}
	return demoted
}

// SetSelected toggles the operator selection flag. Idempotent.
func (r *DeviceRegistry) SetSelected(ctx context.Context, mac string, selected bool) (domain.DeviceRecord, bool) {
	return r.mutate(ctx, mac, func(rec *domain.DeviceRecord) bool {
		if rec.Selected == selected {
			return false
		}
		rec.Selected = selected
		return true
	})
}

// SetKilled toggles the poisoning flag. Idempotent. Status tracks the flag:
// killed reads Blocked immediately, un-killed returns to Active (the
// liveness monitor demotes it again if the host stays silent).
func (r *DeviceRegistry) SetKilled(ctx context.Context, mac string, killed bool) (domain.DeviceRecord, bool) {
	return r.mutate(ctx, mac, func(rec *domain.DeviceRecord) bool {
		if rec.Killed == killed {
			return false
		}
		rec.Killed = killed
		if killed {
			rec.Status = domain.StatusBlocked
		} else {
			rec.Status = domain.StatusActive
		}
		return true
	})
}

func (r *DeviceRegistry) mutate(ctx context.Context, mac string, fn func(*domain.DeviceRecord) bool) (domain.DeviceRecord, bool) {
	key := strings.ToLower(mac)
	shard := r.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.devices[key]
	if !ok {
		return domain.DeviceRecord{}, false
	}
	if !fn(&rec) {
		return rec, false
	}
	shard.devices[key] = rec
	r.subject.NotifyUpdated(ctx, rec)
	return rec, true
}

// ActiveCount returns the number of records currently reading Active.
func (r *DeviceRegistry) ActiveCount(ctx context.Context) int {
	count := 0
	for _, shard := range r.shards {
		shard.mu.RLock()
		for _, rec := range shard.devices {
			if rec.Status == domain.StatusActive {
				count++
			}
		}
		shard.mu.RUnlock()
	}
	return count
}
