package sniffer

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lcalzada-xor/lankill/internal/adapters/packet"
	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
	"github.com/lcalzada-xor/lankill/internal/telemetry"
)

const (
	snapshotLen = 65536
	readTimeout = 500 * time.Millisecond

	// sweepPacing spaces probe emission to avoid self-induced congestion.
	sweepPacing = 10 * time.Millisecond
	// settleTime is the window after a sweep during which replies are
	// still attributed to it. The listener keeps running regardless.
	settleTime = 5 * time.Second
)

var sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lankill_sweeps_total",
	Help: "The total number of subnet sweeps executed",
})

// Options tunes optional engine behavior.
type Options struct {
	// DeepProbe sends ICMP echo and TCP SYN probes to previously seen
	// hosts that have gone silent on ARP.
	DeepProbe bool
	// ProbePort is the TCP SYN target port for deep probes.
	ProbePort uint16
}

// Engine is the discovery engine: one continuous listener plus on-demand
// subnet sweeps, all over a single pcap handle per interface.
type Engine struct {
	iface    domain.Interface
	registry ports.DeviceRegistry
	handle   *pcap.Handle
	sender   *HandleSender
	resolver *identityResolver
	opts     Options

	scanning atomic.Bool

	mu         sync.RWMutex
	netInfo    domain.NetworkInfo
	gatewayIP  net.IP
	gatewayMAC net.HardwareAddr
	claims     map[string]map[string]struct{}
}

var _ ports.Scanner = (*Engine)(nil)

// NewEngine opens the raw channel on the chosen interface. Failure here is
// fatal to discovery and spoofing startup and is surfaced to the caller.
func NewEngine(ifaceName string, registry ports.DeviceRegistry, opts Options) (*Engine, error) {
	iface, err := ResolveInterface(ifaceName)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(ifaceName, snapshotLen, true, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("open capture on %s: %w", ifaceName, err)
	}

	e := &Engine{
		iface:    iface,
		registry: registry,
		handle:   handle,
		sender:   NewHandleSender(handle),
		resolver: newIdentityResolver(registry),
		opts:     opts,
		claims:   make(map[string]map[string]struct{}),
		netInfo: domain.NetworkInfo{
			NetworkRange: iface.Network.String(),
		},
	}

	if gw, err := defaultGateway(ifaceName); err != nil {
		// Resolution-soft: proxy-ARP detection and poisoning degrade,
		// discovery does not.
		log.Printf("[SNIFFER] Gateway lookup failed on %s: %v", ifaceName, err)
	} else {
		e.gatewayIP = gw
		e.netInfo.Gateway = gw.String()
	}

	return e, nil
}

// Interface returns the descriptor of the bound interface.
func (e *Engine) Interface() domain.Interface { return e.iface }

// Sender exposes the shared serialized send handle.
func (e *Engine) Sender() ports.FrameSender { return e.sender }

// Scanning reports whether a sweep is currently in progress.
func (e *Engine) Scanning() bool { return e.scanning.Load() }

// NetworkInfo returns the snapshot recomputed by the latest sweep.
func (e *Engine) NetworkInfo() domain.NetworkInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.netInfo
}

// Gateway returns the resolved default gateway addressing; nil parts mean
// unresolved.
func (e *Engine) Gateway() (net.IP, net.HardwareAddr) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gatewayIP, e.gatewayMAC
}

// Claims returns a copy of the per-MAC claimed-IP sets gathered from
// ARP replies during the most recent sweep.
func (e *Engine) Claims() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]string, len(e.claims))
	for mac, ips := range e.claims {
		for ip := range ips {
			out[mac] = append(out[mac], ip)
		}
	}
	return out
}

// Start runs the continuous listener until ctx is cancelled. It never stops
// between sweeps; every decodable inbound frame feeds the registry.
func (e *Engine) Start(ctx context.Context) error {
	log.Printf("[SNIFFER] Listening on %s (%s)", e.iface.Name, e.iface.Network)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, _, err := e.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture read on %s: %w", e.iface.Name, err)
		}
		e.handleFrame(ctx, data)
	}
}

func (e *Engine) handleFrame(ctx context.Context, data []byte) {
	f := packet.Parse(data)
	if f == nil {
		telemetry.FramesDropped.WithLabelValues("unparsed").Inc()
		return
	}
	// Our own transmissions (sweep probes, poison frames) are not
	// observations.
	if f.SenderMAC.String() == e.iface.MAC.String() {
		return
	}

	// RFC 5227 probes announce with sender IP 0.0.0.0; the host is real
	// but owns no address yet.
	senderIP := f.SenderIP
	if senderIP != nil && senderIP.IsUnspecified() {
		senderIP = nil
	}

	switch f.Kind {
	case packet.FrameARPReply:
		telemetry.FramesReceived.WithLabelValues("arp_reply").Inc()
		e.recordClaim(f.SenderMAC, senderIP)
		e.noteGateway(f.SenderMAC, senderIP)
		e.observe(ctx, f.SenderMAC, senderIP)
	case packet.FrameARPRequest:
		// The asking host announces its own mapping in the sender fields.
		telemetry.FramesReceived.WithLabelValues("arp_request").Inc()
		e.noteGateway(f.SenderMAC, senderIP)
		e.observe(ctx, f.SenderMAC, senderIP)
	case packet.FrameIPv4:
		// Only on-link sources count; routed traffic carries the gateway
		// MAC with an off-subnet IP.
		if senderIP == nil || !e.iface.Network.Contains(senderIP) {
			telemetry.FramesDropped.WithLabelValues("off_subnet").Inc()
			return
		}
		telemetry.FramesReceived.WithLabelValues("ipv4").Inc()
		e.observe(ctx, f.SenderMAC, senderIP)
	}
}

func (e *Engine) observe(ctx context.Context, mac net.HardwareAddr, ip net.IP) {
	rec, created := e.registry.UpsertObserved(ctx, mac, ip, time.Now())
	if created && e.resolver != nil {
		go e.resolver.resolve(ctx, rec.MAC, rec.IP)
	}
}

func (e *Engine) recordClaim(mac net.HardwareAddr, ip net.IP) {
	if ip == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := mac.String()
	if e.claims[key] == nil {
		e.claims[key] = make(map[string]struct{})
	}
	e.claims[key][ip.String()] = struct{}{}
}

func (e *Engine) noteGateway(mac net.HardwareAddr, ip net.IP) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gatewayIP != nil && ip != nil && ip.Equal(e.gatewayIP) {
		e.gatewayMAC = mac
	}
}

// Scan performs one paced ARP sweep of the local subnet, waits out the
// settle window, optionally deep-probes silent hosts, and recomputes the
// network snapshot. Overlapping sweeps are collapsed: a scan in progress
// makes this call a logged no-op.
func (e *Engine) Scan(ctx context.Context) error {
	if !e.scanning.CompareAndSwap(false, true) {
		log.Printf("[SNIFFER] Sweep already in progress, skipping")
		return nil
	}
	defer e.scanning.Store(false)

	sweepsTotal.Inc()
	e.resetSweepState()

	hosts := subnetHosts(e.iface.Network, e.iface.IP)
	log.Printf("[SNIFFER] Sweeping %s (%d candidates)", e.iface.Network, len(hosts))

	for _, ip := range hosts {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := packet.BuildARPRequest(e.iface.MAC, e.iface.IP, ip)
		if err != nil {
			return fmt.Errorf("build probe for %s: %w", ip, err)
		}
		if err := e.sender.Send(frame); err != nil {
			// Transport-transient: skip this probe, keep sweeping.
			log.Printf("[SNIFFER] Probe to %s failed: %v", ip, err)
			continue
		}
		telemetry.FramesSent.WithLabelValues("arp_request").Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sweepPacing):
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(settleTime):
	}

	if e.opts.DeepProbe {
		e.deepProbe(ctx)
	}

	e.mu.Lock()
	e.netInfo = domain.NetworkInfo{
		NetworkRange:  e.iface.Network.String(),
		ActiveDevices: e.registry.ActiveCount(ctx),
	}
	if e.gatewayIP != nil {
		e.netInfo.Gateway = e.gatewayIP.String()
	}
	e.mu.Unlock()

	return nil
}

func (e *Engine) resetSweepState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claims = make(map[string]map[string]struct{})
	if gw, err := defaultGateway(e.iface.Name); err == nil {
		e.gatewayIP = gw
	}
}

// deepProbe sends ICMP echo and TCP SYN probes to hosts that were seen
// before but stopped answering ARP. Their replies come back as ordinary
// IPv4 frames and resurrect the records through the listener.
func (e *Engine) deepProbe(ctx context.Context) {
	port := e.opts.ProbePort
	if port == 0 {
		port = 80
	}

	for _, rec := range e.registry.GetAllDevices(ctx) {
		if rec.Status != domain.StatusInactive || rec.IP == "" {
			continue
		}
		mac, err := net.ParseMAC(rec.MAC)
		if err != nil {
			continue
		}
		ip := net.ParseIP(rec.IP)
		if ip == nil {
			continue
		}

		if frame, err := packet.BuildICMPEcho(e.iface.MAC, e.iface.IP, mac, ip, 0x4c4b, 1); err == nil {
			if err := e.sender.Send(frame); err == nil {
				telemetry.FramesSent.WithLabelValues("icmp_echo").Inc()
			}
		}
		if frame, err := packet.BuildTCPSyn(e.iface.MAC, e.iface.IP, mac, ip, 54321, port); err == nil {
			if err := e.sender.Send(frame); err == nil {
				telemetry.FramesSent.WithLabelValues("tcp_syn").Inc()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sweepPacing):
		}
	}
}

// Close releases the capture handle. The listener unblocks with an error
// that Start suppresses once its context is cancelled.
func (e *Engine) Close() {
	e.sender.close()
	if e.handle != nil {
		e.handle.Close()
	}
}
