package domain

import "time"

// DeviceStatus is the advisory liveness/poisoning view of a device.
type DeviceStatus string

const (
	StatusActive   DeviceStatus = "active"
	StatusInactive DeviceStatus = "inactive"
	StatusBlocked  DeviceStatus = "blocked"
	StatusUnknown  DeviceStatus = "unknown"
)

// Unknown is the sentinel for unresolved hostname/vendor fields.
const Unknown = "Unknown"

// DeviceRecord represents one observed host on the local segment.
//
// MAC is the canonical identity key: IP addresses legitimately change under
// DHCP while the hardware address is stable. A host that changes its MAC
// (NIC swap, randomization) therefore shows up as a new device.
type DeviceRecord struct {
	MAC      string       `json:"mac"`
	IP       string       `json:"ip"`
	Hostname string       `json:"hostname"`
	Vendor   string       `json:"vendor"`
	Status   DeviceStatus `json:"status"`

	FirstSeen time.Time `json:"first_seen"`
	// LastSeen is zero until the first inbound frame attributed to the host
	// and monotonically non-decreasing afterwards.
	LastSeen time.Time `json:"last_seen"`

	// Selected and Killed are operator-owned flags. The core only reads
	// Killed; the poison loop re-asserts spoofing every tick while it is
	// set and restores the true mapping once it clears.
	Selected bool `json:"selected"`
	Killed   bool `json:"killed"`
}

// NetworkInfo is the process-wide snapshot recomputed on each scan.
type NetworkInfo struct {
	NetworkRange  string `json:"network_range"` // CIDR
	Gateway       string `json:"gateway"`
	ActiveDevices int    `json:"active_devices"`
}
