// Package limits provides centralized datagram size limits for the RTP receive path.
// This ensures consistent validation across the transports and the SSRC demux.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinRTPHeader is the size of the fixed RTP header (RFC 3550 section 5.1)
	// Anything shorter cannot be an RTP packet
	MinRTPHeader = 12

	// MaxDatagram is the largest UDP payload that fits an IPv4 datagram
	// (65535 - 20 byte IP header - 8 byte UDP header)
	MaxDatagram = 65507

	// ReadBufferSize is the receive buffer used by datagram transports
	// One byte larger than MaxDatagram so oversize reads are detectable
	ReadBufferSize = MaxDatagram + 1
)

var (
	// ErrDatagramEmpty indicates an empty datagram was provided
	ErrDatagramEmpty = errors.New("empty datagram")

	// ErrDatagramTooShort indicates a datagram smaller than an RTP header
	ErrDatagramTooShort = errors.New("datagram too short")

	// ErrDatagramTooLarge indicates a datagram exceeding the maximum size
	ErrDatagramTooLarge = errors.New("datagram too large")
)

// ValidateDatagramSize validates a datagram against the specified bounds.
// Returns an error with context including the actual size and the violated bound.
func ValidateDatagramSize(data []byte, minSize, maxSize int) error {
	if len(data) == 0 {
		return ErrDatagramEmpty
	}
	if len(data) < minSize {
		return fmt.Errorf("%w: size %d below minimum %d", ErrDatagramTooShort, len(data), minSize)
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrDatagramTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateRTPDatagram validates a datagram that is expected to carry one RTP packet.
// Returns an error with context if the datagram is empty, shorter than the fixed
// header or larger than MaxDatagram.
func ValidateRTPDatagram(data []byte) error {
	return ValidateDatagramSize(data, MinRTPHeader, MaxDatagram)
}
