package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FramesSent counts raw frames written to the wire, by payload kind.
	FramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lankill",
			Name:      "frames_sent_total",
			Help:      "Total number of raw frames written to the interface",
		},
		[]string{"kind"},
	)

	// FramesReceived counts inbound frames the listener decoded, by kind.
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lankill",
			Name:      "frames_received_total",
			Help:      "Total number of inbound frames decoded by the listener",
		},
		[]string{"kind"},
	)

	// FramesDropped counts inbound frames discarded without processing.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lankill",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames discarded",
		},
		[]string{"reason"},
	)

	// PoisonFrames counts forged ARP replies sent by the poison loop.
	PoisonFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lankill",
			Name:      "poison_frames_total",
			Help:      "Total number of forged ARP replies sent",
		},
		[]string{"side"}, // "victim" or "gateway"
	)

	// RestoreFrames counts corrective ARP replies sent by restoration.
	RestoreFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lankill",
			Name:      "restore_frames_total",
			Help:      "Total number of corrective ARP replies sent",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; safe to call from tests and from bootstrap.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(FramesSent)
		prometheus.DefaultRegisterer.Register(FramesReceived)
		prometheus.DefaultRegisterer.Register(FramesDropped)
		prometheus.DefaultRegisterer.Register(PoisonFrames)
		prometheus.DefaultRegisterer.Register(RestoreFrames)
	})
}
