package domain

import "time"

// WarningType classifies advisory warnings emitted by the core.
type WarningType string

const (
	WarnProxyARP        WarningType = "proxy_arp"
	WarnDegradedRestore WarningType = "degraded_restore"
	WarnPoisonExpired   WarningType = "poison_expired"
)

// Warning is an advisory anomaly notification. It never changes engine
// behavior; it only informs the operator.
type Warning struct {
	Type      WarningType `json:"type"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}
