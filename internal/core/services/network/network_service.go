package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lcalzada-xor/lankill/internal/adapters/attack/poison"
	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
	"github.com/lcalzada-xor/lankill/internal/core/services/audit"
)

var (
	// ErrUnknownDevice is returned for operations on a MAC the registry has
	// never observed.
	ErrUnknownDevice = errors.New("unknown device")

	scansTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lankill_scans_triggered_total",
		Help: "The total number of operator-triggered scans",
	})
	killsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lankill_kills_total",
		Help: "The total number of devices flagged for poisoning",
	})
	restoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lankill_restores_total",
		Help: "The total number of devices released from poisoning",
	})
	staleDemotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lankill_stale_demotions_total",
		Help: "The total number of records demoted to inactive by the liveness monitor",
	})
)

// Service is the orchestration facade: scans, kill/restore flags, liveness,
// warnings, and the audit trail. Handlers talk to this, never to the
// engines directly.
type Service struct {
	scanner  ports.Scanner
	registry ports.DeviceRegistry
	audit    *audit.Service

	warnings chan domain.Warning
}

// NewService wires the facade.
func NewService(scanner ports.Scanner, registry ports.DeviceRegistry, auditSvc *audit.Service) *Service {
	return &Service{
		scanner:  scanner,
		registry: registry,
		audit:    auditSvc,
		warnings: make(chan domain.Warning, 16),
	}
}

// Warnings exposes the advisory warning stream (proxy ARP, degraded
// restores, poison expiry).
func (s *Service) Warnings() <-chan domain.Warning { return s.warnings }

// EmitWarning publishes a warning without ever blocking the producer; a
// full buffer drops the oldest semantics in favor of just skipping.
func (s *Service) EmitWarning(w domain.Warning) {
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now()
	}
	select {
	case s.warnings <- w:
	default:
		log.Printf("[NETWORK] Warning buffer full, dropping %s", w.Type)
	}
}

// TriggerScan starts one subnet sweep in the background and returns
// immediately. A sweep already in progress makes the trigger a no-op at the
// engine; both outcomes are audited once.
func (s *Service) TriggerScan(ctx context.Context) {
	scansTriggered.Inc()
	s.audit.Record(domain.AuditScan, "", "", "subnet sweep triggered")

	go func() {
		if err := s.scanner.Scan(ctx); err != nil {
			log.Printf("[NETWORK] Sweep failed: %v", err)
			return
		}
		s.checkProxyARP()
	}()
}

// checkProxyARP correlates the finished sweep's claims against the gateway
// hardware address and surfaces an advisory warning if the gateway answers
// for the segment.
func (s *Service) checkProxyARP() {
	_, gwMAC := s.scanner.Gateway()
	if gwMAC == nil {
		return
	}
	if w, ok := poison.DetectProxyARP(s.scanner.Claims(), strings.ToLower(gwMAC.String())); ok {
		log.Printf("[NETWORK] %s", w.Message)
		s.EmitWarning(w)
	}
}

// Scanning reports whether a sweep is in progress.
func (s *Service) Scanning() bool { return s.scanner.Scanning() }

// NetworkInfo returns the latest scan snapshot with a live active count.
func (s *Service) NetworkInfo(ctx context.Context) domain.NetworkInfo {
	info := s.scanner.NetworkInfo()
	info.ActiveDevices = s.registry.ActiveCount(ctx)
	return info
}

// Devices returns all known records ordered by IP for stable presentation.
func (s *Service) Devices(ctx context.Context) []domain.DeviceRecord {
	devices := s.registry.GetAllDevices(ctx)
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].IP != devices[j].IP {
			return ipLess(devices[i].IP, devices[j].IP)
		}
		return devices[i].MAC < devices[j].MAC
	})
	return devices
}

// Device returns one record by MAC.
func (s *Service) Device(ctx context.Context, mac string) (domain.DeviceRecord, error) {
	rec, ok := s.registry.GetDevice(ctx, mac)
	if !ok {
		return domain.DeviceRecord{}, fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}
	return rec, nil
}

// SetSelected toggles the operator selection flag.
func (s *Service) SetSelected(ctx context.Context, mac string, selected bool) (domain.DeviceRecord, error) {
	rec, _ := s.registry.SetSelected(ctx, mac, selected)
	if rec.MAC == "" {
		return domain.DeviceRecord{}, fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}
	return rec, nil
}

// Kill flags one device for poisoning. The poison loop picks the flag up on
// its next tick; no frames are sent from here.
func (s *Service) Kill(ctx context.Context, mac string) (domain.DeviceRecord, error) {
	if s.isProtected(mac) {
		return domain.DeviceRecord{}, fmt.Errorf("refusing to poison %s: gateway or own interface", mac)
	}
	rec, changed := s.registry.SetKilled(ctx, mac, true)
	if rec.MAC == "" {
		return domain.DeviceRecord{}, fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}
	if changed {
		killsTotal.Inc()
		s.audit.Record(domain.AuditKill, rec.MAC, rec.IP, "")
		log.Printf("[NETWORK] Kill %s (%s)", rec.MAC, rec.IP)
	}
	return rec, nil
}

// Restore clears the poisoning flag; the poison loop sends the corrective
// replies on its next tick.
func (s *Service) Restore(ctx context.Context, mac string) (domain.DeviceRecord, error) {
	rec, changed := s.registry.SetKilled(ctx, mac, false)
	if rec.MAC == "" {
		return domain.DeviceRecord{}, fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}
	if changed {
		restoresTotal.Inc()
		s.audit.Record(domain.AuditRestore, rec.MAC, rec.IP, "")
		log.Printf("[NETWORK] Restore %s (%s)", rec.MAC, rec.IP)
	}
	return rec, nil
}

// KillAll flags every known device except the gateway and our own
// interface. Returns the number of devices newly flagged.
func (s *Service) KillAll(ctx context.Context) int {
	count := 0
	for _, rec := range s.registry.GetAllDevices(ctx) {
		if s.isProtected(rec.MAC) {
			continue
		}
		if _, changed := s.registry.SetKilled(ctx, rec.MAC, true); changed {
			killsTotal.Inc()
			count++
		}
	}
	s.audit.Record(domain.AuditKillAll, "", "", fmt.Sprintf("%d devices flagged", count))
	log.Printf("[NETWORK] Kill all: %d devices flagged", count)
	return count
}

// RestoreAll clears the poisoning flag everywhere. Returns the number of
// devices released.
func (s *Service) RestoreAll(ctx context.Context) int {
	count := 0
	for _, rec := range s.registry.GetAllDevices(ctx) {
		if !rec.Killed {
			continue
		}
		if _, changed := s.registry.SetKilled(ctx, rec.MAC, false); changed {
			restoresTotal.Inc()
			count++
		}
	}
	s.audit.Record(domain.AuditRestoreAll, "", "", fmt.Sprintf("%d devices released", count))
	log.Printf("[NETWORK] Restore all: %d devices released", count)
	return count
}

// KillSelected flags every selected device, with the same protections as
// KillAll.
func (s *Service) KillSelected(ctx context.Context) int {
	count := 0
	for _, rec := range s.registry.GetAllDevices(ctx) {
		if !rec.Selected || s.isProtected(rec.MAC) {
			continue
		}
		if _, err := s.Kill(ctx, rec.MAC); err == nil {
			count++
		}
	}
	return count
}

// RestoreSelected releases every selected device.
func (s *Service) RestoreSelected(ctx context.Context) int {
	count := 0
	for _, rec := range s.registry.GetAllDevices(ctx) {
		if !rec.Selected || !rec.Killed {
			continue
		}
		if _, err := s.Restore(ctx, rec.MAC); err == nil {
			count++
		}
	}
	return count
}

// AuditLog returns the most recent operator actions.
func (s *Service) AuditLog(limit int) ([]domain.AuditEntry, error) {
	return s.audit.List(limit)
}

// isProtected reports whether the MAC belongs to the gateway or our own
// interface. Poisoning either would cut the whole segment (or ourselves)
// off.
func (s *Service) isProtected(mac string) bool {
	key := strings.ToLower(mac)
	if iface := s.scanner.Interface(); iface.MAC != nil && strings.ToLower(iface.MAC.String()) == key {
		return true
	}
	if _, gwMAC := s.scanner.Gateway(); gwMAC != nil && strings.ToLower(gwMAC.String()) == key {
		return true
	}
	return false
}

// StartLivenessLoop demotes silent records on a fixed cadence until ctx is
// cancelled. Demotion is advisory presentation state only; killed records
// are exempt and keep reading Blocked.
func (s *Service) StartLivenessLoop(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if demoted := s.registry.MarkStale(ctx, now, timeout); demoted > 0 {
				staleDemotions.Add(float64(demoted))
				log.Printf("[NETWORK] Liveness: %d devices went inactive", demoted)
			}
		}
	}
}

// ipLess orders dotted-quad strings numerically, falling back to string
// order for anything unparseable.
func ipLess(a, b string) bool {
	pa, errA := parseQuad(a)
	pb, errB := parseQuad(b)
	if errA != nil || errB != nil {
		return a < b
	}
	for i := 0; i < 4; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

func parseQuad(s string) ([4]int, error) {
	var q [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return q, errors.New("not dotted quad")
	}
	for i, p := range parts {
		n := 0
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return q, err
		}
		q[i] = n
	}
	return q, nil
}
