package domain

import "net"

// Interface describes the selected network interface the core operates on.
type Interface struct {
	Name    string
	MAC     net.HardwareAddr
	IP      net.IP     // bound IPv4 address
	Network *net.IPNet // local subnet (IP + prefix)
}

// Valid reports whether the interface carries everything discovery needs.
func (i Interface) Valid() bool {
	return i.Name != "" && len(i.MAC) == 6 && i.IP != nil && i.Network != nil
}
