package packet

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Broadcast is the all-ones Ethernet destination.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// zeroMAC is the all-zero target hardware address of an ARP request.
var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// BuildARPRequest constructs a broadcast who-has request for targetIP.
// Target hardware is all-zero per RFC 826.
func BuildARPRequest(srcMAC net.HardwareAddr, srcIP, targetIP net.IP) ([]byte, error) {
	return buildARP(layers.ARPRequest, srcMAC, srcIP, Broadcast, zeroMAC, targetIP)
}

// BuildARPReply constructs a unicast is-at reply claiming srcIP is at srcMAC.
// Used both for answering probes and for cache poisoning; the poison loop
// simply lies about srcIP.
func BuildARPReply(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) ([]byte, error) {
	return buildARP(layers.ARPReply, srcMAC, srcIP, dstMAC, dstMAC, dstIP)
}

func buildARP(op uint16, srcMAC net.HardwareAddr, srcIP net.IP, ethDst, arpDst net.HardwareAddr, dstIP net.IP) ([]byte, error) {
	src4 := srcIP.To4()
	dst4 := dstIP.To4()
	if src4 == nil || dst4 == nil {
		return nil, fmt.Errorf("arp: non-IPv4 address (src=%v dst=%v)", srcIP, dstIP)
	}
	if len(srcMAC) != 6 {
		return nil, fmt.Errorf("arp: bad source hardware address %v", srcMAC)
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       ethDst,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: src4,
		DstHwAddress:      arpDst,
		DstProtAddress:    dst4,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, fmt.Errorf("serialize arp failed: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildICMPEcho constructs an ICMP Echo Request carried over IPv4 and
// Ethernet. A nil dstMAC falls back to broadcast. Checksums (IP header and
// ICMP) are computed during serialization.
func BuildICMPEcho(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP, id, seq uint16) ([]byte, error) {
	src4 := srcIP.To4()
	dst4 := dstIP.To4()
	if src4 == nil || dst4 == nil {
		return nil, fmt.Errorf("icmp: non-IPv4 address (src=%v dst=%v)", srcIP, dstIP)
	}
	if dstMAC == nil {
		dstMAC = Broadcast
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    src4,
		DstIP:    dst4,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, icmp, gopacket.Payload([]byte("lankill"))); err != nil {
		return nil, fmt.Errorf("serialize icmp echo failed: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildTCPSyn constructs a bare 20-byte-header SYN segment over IPv4 and
// Ethernet. The TCP checksum is computed over the IPv4 pseudo-header.
func BuildTCPSyn(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP, srcPort, dstPort uint16) ([]byte, error) {
	src4 := srcIP.To4()
	dst4 := dstIP.To4()
	if src4 == nil || dst4 == nil {
		return nil, fmt.Errorf("tcp: non-IPv4 address (src=%v dst=%v)", srcIP, dstIP)
	}
	if dstMAC == nil {
		dstMAC = Broadcast
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src4,
		DstIP:    dst4,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		SYN:     true,
		Window:  14600,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("tcp checksum context: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp); err != nil {
		return nil, fmt.Errorf("serialize tcp syn failed: %w", err)
	}
	return buf.Bytes(), nil
}
