package domain

import "time"

// Audit actions recorded for operator-initiated operations.
const (
	AuditScan       = "scan"
	AuditKill       = "kill"
	AuditRestore    = "restore"
	AuditKillAll    = "kill_all"
	AuditRestoreAll = "restore_all"
	AuditExpiry     = "poison_expired"
)

// AuditEntry is one operator action. Only actions are persisted; the device
// registry itself is never written to disk.
type AuditEntry struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Action    string    `json:"action" gorm:"index"`
	TargetMAC string    `json:"target_mac,omitempty"`
	TargetIP  string    `json:"target_ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
}
