// Package rtp provides the RTP receive path for toxrtx.
//
// This file defines the packet representation shared by the media and
// retransmission streams. It uses the pion/rtp library for
// standards-compliant header and payload handling.
package rtp

import (
	"fmt"

	"github.com/pion/rtp"
)

// Packet is a received RTP packet.
//
// The embedded pion/rtp packet carries the wire-level header and payload.
// Recovered marks packets that were reconstructed from a retransmission
// rather than received on the media stream itself; downstream loss
// statistics and ordering logic consult it.
type Packet struct {
	rtp.Packet

	// Recovered is true when the packet was rebuilt from an RTX packet.
	Recovered bool
}

// ParsePacket unmarshals raw RTP data into a new Packet.
//
// The returned packet's payload aliases data; callers that reuse the
// buffer must copy it first.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPacket
	}

	packet := &Packet{}
	if err := packet.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	return packet, nil
}

// CopyHeaderFrom replaces p's header with a deep copy of src's header.
//
// Every header field is copied, including marker, timestamp, CSRC list and
// header extensions. The payload and the Recovered flag are left alone.
func (p *Packet) CopyHeaderFrom(src *Packet) {
	p.Header = src.Header.Clone()
}

// AllocatePayload replaces the payload with a zeroed buffer of exactly size
// bytes and returns it for the caller to fill.
//
// Padding belongs to the payload section, so the padding bit is cleared.
func (p *Packet) AllocatePayload(size int) []byte {
	p.Payload = make([]byte, size)
	p.Header.Padding = false
	p.Header.PaddingSize = 0
	p.Packet.PaddingSize = 0
	return p.Payload
}

// PacketSink consumes packets produced by the receive path.
//
// OnRTPPacket is invoked synchronously on the delivering goroutine. The
// sink owns the packet after the call returns.
type PacketSink interface {
	OnRTPPacket(packet *Packet)
}

// PacketSinkFunc adapts an ordinary function to the PacketSink interface.
type PacketSinkFunc func(packet *Packet)

// OnRTPPacket calls f(packet).
func (f PacketSinkFunc) OnRTPPacket(packet *Packet) {
	f(packet)
}
