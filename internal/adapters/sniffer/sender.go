package sniffer

import (
	"fmt"
	"sync"

	"github.com/google/gopacket/pcap"
)

// HandleSender serializes writes onto the single pcap send handle. The
// sweep and the poison loop send concurrently; reads never contend here.
type HandleSender struct {
	mu     sync.Mutex
	handle *pcap.Handle
}

// NewHandleSender wraps a pcap handle for shared sending.
func NewHandleSender(handle *pcap.Handle) *HandleSender {
	return &HandleSender{handle: handle}
}

// Send writes one frame. A failed send is a transient transport error the
// owning loop logs and skips.
func (s *HandleSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return fmt.Errorf("send handle closed")
	}
	if err := s.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *HandleSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = nil
}
