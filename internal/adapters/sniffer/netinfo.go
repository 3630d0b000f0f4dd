package sniffer

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
)

const routeTablePath = "/proc/net/route"

// ResolveInterface looks up a named interface and extracts the descriptor
// discovery needs. A missing IPv4 binding is a precondition failure the
// caller must surface before any scan starts.
func ResolveInterface(name string) (domain.Interface, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return domain.Interface{}, fmt.Errorf("interface %s: %w", name, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return domain.Interface{}, fmt.Errorf("interface %s has no usable hardware address", name)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return domain.Interface{}, fmt.Errorf("interface %s addresses: %w", name, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		return domain.Interface{
			Name:    name,
			MAC:     iface.HardwareAddr,
			IP:      ip4,
			Network: &net.IPNet{IP: ip4.Mask(ipnet.Mask), Mask: ipnet.Mask},
		}, nil
	}
	return domain.Interface{}, fmt.Errorf("interface %s has no IPv4 address", name)
}

// defaultGateway reads /proc/net/route and returns the default gateway
// bound to the given interface. Failure here degrades proxy-ARP detection
// and poisoning only, never discovery.
func defaultGateway(ifaceName string) (net.IP, error) {
	f, err := os.Open(routeTablePath)
	if err != nil {
		return nil, fmt.Errorf("open route table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Skip header
	if scanner.Scan() {
		_ = scanner.Text()
	}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// Default route: destination 0.0.0.0 on our interface.
		if fields[0] != ifaceName || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			continue
		}
		// /proc/net/route stores addresses little-endian.
		gw := make(net.IP, 4)
		binary.LittleEndian.PutUint32(gw, binary.BigEndian.Uint32(raw))
		return gw, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return nil, fmt.Errorf("no default route on %s", ifaceName)
}

// subnetHosts enumerates every candidate host address in the network,
// excluding the network/broadcast addresses and our own.
func subnetHosts(network *net.IPNet, own net.IP) []net.IP {
	base := network.IP.To4()
	if base == nil {
		return nil
	}
	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil
	}

	start := binary.BigEndian.Uint32(base)
	size := uint32(1) << (32 - ones)
	own4 := own.To4()

	var hosts []net.IP
	for off := uint32(0); off < size; off++ {
		// Skip network and broadcast addresses on conventional prefixes.
		if ones < 31 && (off == 0 || off == size-1) {
			continue
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, start+off)
		if own4 != nil && ip.Equal(own4) {
			continue
		}
		hosts = append(hosts, ip)
	}
	return hosts
}
