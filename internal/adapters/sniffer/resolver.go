package sniffer

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/lcalzada-xor/lankill/internal/core/ports"
)

// Small embedded OUI prefix table. Best effort only: anything missing stays
// "Unknown" per the device record defaults.
var ouiVendors = map[string]string{
	"00:50:56": "VMware",
	"00:0c:29": "VMware",
	"52:54:00": "QEMU",
	"08:00:27": "Oracle VirtualBox",
	"dc:a6:32": "Raspberry Pi",
	"b8:27:eb": "Raspberry Pi",
	"28:cd:c1": "Raspberry Pi",
	"3c:22:fb": "Apple",
	"f0:18:98": "Apple",
	"a4:83:e7": "Apple",
	"f4:f5:d8": "Google",
	"94:eb:2c": "Google",
	"fc:f5:c4": "Espressif",
	"24:0a:c4": "Espressif",
	"b0:be:76": "TP-Link",
	"50:c7:bf": "TP-Link",
	"00:1a:11": "Google",
	"74:da:88": "TP-Link",
	"18:e8:29": "Ubiquiti",
	"f0:9f:c2": "Ubiquiti",
	"00:11:32": "Synology",
	"ec:8e:b5": "Hewlett Packard",
	"3c:5a:b4": "Google",
	"00:e0:4c": "Realtek",
}

// identityResolver fills hostname/vendor on newly discovered devices.
type identityResolver struct {
	registry ports.DeviceRegistry
	dns      *net.Resolver
	timeout  time.Duration
}

func newIdentityResolver(registry ports.DeviceRegistry) *identityResolver {
	return &identityResolver{
		registry: registry,
		dns:      net.DefaultResolver,
		timeout:  2 * time.Second,
	}
}

// resolve runs on its own goroutine per new device; it never blocks the
// listener path.
func (r *identityResolver) resolve(ctx context.Context, mac, ip string) {
	vendor := vendorForMAC(mac)

	hostname := ""
	if ip != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if names, err := r.dns.LookupAddr(lookupCtx, ip); err == nil && len(names) > 0 {
			hostname = strings.TrimSuffix(names[0], ".")
		}
	}

	if hostname == "" && vendor == "" {
		return
	}
	r.registry.UpdateIdentity(ctx, mac, hostname, vendor)
}

func vendorForMAC(mac string) string {
	if len(mac) < 8 {
		return ""
	}
	return ouiVendors[strings.ToLower(mac[:8])]
}
