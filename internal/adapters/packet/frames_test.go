package packet

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	attackerMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0xaa, 0xbb, 0xcc}
	victimMAC   = net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	attackerIP  = net.IPv4(192, 168, 1, 10)
	victimIP    = net.IPv4(192, 168, 1, 42)
	gatewayIP   = net.IPv4(192, 168, 1, 1)
)

func TestBuildARPRequest_RoundTrip(t *testing.T) {
	frame, err := BuildARPRequest(attackerMAC, attackerIP, victimIP)
	require.NoError(t, err)

	decoded := Parse(frame)
	require.NotNil(t, decoded)
	assert.Equal(t, FrameARPRequest, decoded.Kind)
	assert.Equal(t, attackerMAC.String(), decoded.SenderMAC.String())
	assert.True(t, decoded.SenderIP.Equal(attackerIP))
	assert.True(t, decoded.TargetIP.Equal(victimIP))

	// The request goes to the broadcast address with an all-zero target
	// hardware field.
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, Broadcast.String(), eth.DstMAC.String())
	arp := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	assert.Equal(t, zeroMAC.String(), net.HardwareAddr(arp.DstHwAddress).String())
}

func TestBuildARPReply_RoundTrip(t *testing.T) {
	// The poison case: attacker MAC claiming the gateway IP, unicast to
	// the victim.
	frame, err := BuildARPReply(attackerMAC, gatewayIP, victimMAC, victimIP)
	require.NoError(t, err)

	decoded := Parse(frame)
	require.NotNil(t, decoded)
	assert.Equal(t, FrameARPReply, decoded.Kind)
	assert.Equal(t, attackerMAC.String(), decoded.SenderMAC.String())
	assert.True(t, decoded.SenderIP.Equal(gatewayIP))
	assert.Equal(t, victimMAC.String(), decoded.TargetMAC.String())
	assert.True(t, decoded.TargetIP.Equal(victimIP))

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, victimMAC.String(), eth.DstMAC.String())
}

func TestBuildARP_RejectsNonIPv4(t *testing.T) {
	v6 := net.ParseIP("fe80::1")
	_, err := BuildARPRequest(attackerMAC, v6, victimIP)
	assert.Error(t, err)
	_, err = BuildARPReply(attackerMAC, attackerIP, victimMAC, v6)
	assert.Error(t, err)
}

func TestBuildICMPEcho_Checksums(t *testing.T) {
	frame, err := BuildICMPEcho(attackerMAC, attackerIP, victimMAC, victimIP, 0x4c4b, 7)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	icmpLayer := pkt.Layer(layers.LayerTypeICMPv4)
	require.NotNil(t, icmpLayer)
	icmp := icmpLayer.(*layers.ICMPv4)
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoRequest), icmp.TypeCode.Type())
	assert.Equal(t, uint16(0x4c4b), icmp.Id)
	assert.Equal(t, uint16(7), icmp.Seq)

	// The ones'-complement sum over the whole ICMP message, checksum
	// included, must fold to 0xffff.
	icmpBytes := frame[14+20:]
	assert.Equal(t, uint16(0xffff), onesComplementSum(icmpBytes, 0))
}

func TestBuildTCPSyn_PseudoHeaderChecksum(t *testing.T) {
	frame, err := BuildTCPSyn(attackerMAC, attackerIP, victimMAC, victimIP, 54321, 80)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	require.NotNil(t, tcpLayer)
	tcp := tcpLayer.(*layers.TCP)
	assert.True(t, tcp.SYN)
	assert.False(t, tcp.ACK)
	assert.Equal(t, layers.TCPPort(54321), tcp.SrcPort)
	assert.Equal(t, layers.TCPPort(80), tcp.DstPort)

	// Verify the checksum over the IPv4 pseudo-header plus the segment.
	segment := frame[14+20:]
	var pseudo []byte
	pseudo = append(pseudo, attackerIP.To4()...)
	pseudo = append(pseudo, victimIP.To4()...)
	pseudo = append(pseudo, 0, 6) // zero + protocol
	pseudo = append(pseudo, byte(len(segment)>>8), byte(len(segment)))
	partial := onesComplementSum(pseudo, 0)
	assert.Equal(t, uint16(0xffff), onesComplementSum(segment, uint32(partial)))
}

func TestBuildICMPEcho_NilDstMACBroadcasts(t *testing.T) {
	frame, err := BuildICMPEcho(attackerMAC, attackerIP, nil, victimIP, 1, 1)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, Broadcast.String(), eth.DstMAC.String())
}

func TestParse_MalformedAndIrrelevant(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]byte{0x01, 0x02, 0x03}))
	// Valid Ethernet header with a non-IP, non-ARP ethertype.
	frame := make([]byte, 60)
	copy(frame[0:6], victimMAC)
	copy(frame[6:12], attackerMAC)
	frame[12], frame[13] = 0x88, 0xcc // LLDP
	assert.Nil(t, Parse(frame))
}

func TestParse_IPv4SurfacesSenderOnly(t *testing.T) {
	frame, err := BuildTCPSyn(attackerMAC, attackerIP, victimMAC, victimIP, 1024, 443)
	require.NoError(t, err)

	decoded := Parse(frame)
	require.NotNil(t, decoded)
	assert.Equal(t, FrameIPv4, decoded.Kind)
	assert.Equal(t, attackerMAC.String(), decoded.SenderMAC.String())
	assert.True(t, decoded.SenderIP.Equal(attackerIP))
	assert.Nil(t, decoded.TargetMAC)
	assert.Nil(t, decoded.TargetIP)
}

// onesComplementSum folds the 16-bit ones'-complement sum of b, seeded with
// an initial partial sum.
func onesComplementSum(b []byte, initial uint32) uint16 {
	sum := initial
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}
