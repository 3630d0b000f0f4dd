package packet

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameKind tags the closed set of decoded frame variants.
type FrameKind int

const (
	FrameARPReply FrameKind = iota
	FrameARPRequest
	FrameIPv4
)

// DecodedFrame is the tagged result of parsing one inbound Ethernet frame.
// Sender fields are always populated; Target fields only for ARP.
type DecodedFrame struct {
	Kind      FrameKind
	SenderMAC net.HardwareAddr
	SenderIP  net.IP
	TargetMAC net.HardwareAddr
	TargetIP  net.IP
}

// Parse decodes a raw frame into one of the known variants. It returns nil
// for malformed or irrelevant input and never panics; the listener treats
// nil as a silent drop.
func Parse(data []byte) *DecodedFrame {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if pkt.ErrorLayer() != nil {
		return nil
	}

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		arp, ok := arpLayer.(*layers.ARP)
		if !ok || arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
			return nil
		}
		f := &DecodedFrame{
			SenderMAC: cloneMAC(arp.SourceHwAddress),
			SenderIP:  cloneIP(arp.SourceProtAddress),
			TargetMAC: cloneMAC(arp.DstHwAddress),
			TargetIP:  cloneIP(arp.DstProtAddress),
		}
		switch arp.Operation {
		case layers.ARPReply:
			f.Kind = FrameARPReply
		case layers.ARPRequest:
			f.Kind = FrameARPRequest
		default:
			return nil
		}
		return f
	}

	// Plain IP traffic still proves the sender is alive; surface its
	// source addressing so the listener can refresh liveness.
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ethLayer == nil || ipLayer == nil {
		return nil
	}
	eth := ethLayer.(*layers.Ethernet)
	ip := ipLayer.(*layers.IPv4)
	return &DecodedFrame{
		Kind:      FrameIPv4,
		SenderMAC: cloneMAC(eth.SrcMAC),
		SenderIP:  cloneIP(ip.SrcIP),
	}
}

// The capture buffer is reused between reads; copy out anything we keep.
func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(mac))
	copy(out, mac)
	return out
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}
