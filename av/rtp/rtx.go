package rtp

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// RTXHeaderSize is the size of the original sequence number that prefixes
// every RTX payload (RFC 4588 section 4).
const RTXHeaderSize = 2

// RTXStatistics is a point-in-time copy of an RTXReceiveStream's counters.
type RTXStatistics struct {
	Received                  uint64
	Recovered                 uint64
	DroppedMalformed          uint64
	DroppedUnknownPayloadType uint64
}

// RTXOption configures an RTXReceiveStream.
type RTXOption func(*RTXReceiveStream)

// WithLogger sets the logger used for diagnostics. A nil logger is ignored.
func WithLogger(logger logrus.FieldLogger) RTXOption {
	return func(s *RTXReceiveStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// RTXReceiveStream unwraps packets received on an RTX stream and forwards
// them, restored to the media stream's format, to a PacketSink.
//
// The stream holds no per-packet state. Its payload type association is
// an immutable snapshot behind an atomic pointer, so OnRTPPacket may be
// called from several goroutines and never takes a lock.
type RTXReceiveStream struct {
	sink         PacketSink
	payloadTypes atomic.Pointer[PayloadTypeMap]
	mediaSSRC    uint32
	logger       logrus.FieldLogger

	received         atomic.Uint64
	recovered        atomic.Uint64
	droppedMalformed atomic.Uint64
	droppedUnknownPT atomic.Uint64
}

// NewRTXReceiveStream creates a receive stream that restores packets onto
// the media stream identified by mediaSSRC.
//
// An empty payload type map is accepted but logged as a warning: until the
// map is replaced with UpdatePayloadTypes, every RTX packet is dropped.
//
// Parameters:
//   - sink: Consumer of recovered packets, must not be nil
//   - payloadTypes: RTX to media payload type association
//   - mediaSSRC: SSRC written into every recovered packet
//   - opts: Optional configuration
//
// Returns:
//   - *RTXReceiveStream: New receive stream
//   - error: ErrNilSink when sink is nil
func NewRTXReceiveStream(sink PacketSink, payloadTypes PayloadTypeMap, mediaSSRC uint32, opts ...RTXOption) (*RTXReceiveStream, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	s := &RTXReceiveStream{
		sink:      sink,
		mediaSSRC: mediaSSRC,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot := payloadTypes
	s.payloadTypes.Store(&snapshot)
	s.warnIfEmpty(snapshot, "NewRTXReceiveStream")

	s.logger.WithFields(logrus.Fields{
		"function":      "NewRTXReceiveStream",
		"media_ssrc":    mediaSSRC,
		"payload_types": snapshot.String(),
	}).Debug("RTX receive stream created")

	return s, nil
}

// OnRTPPacket unwraps a single RTX packet.
//
// Malformed packets and packets with an unassociated payload type are
// dropped; nothing is ever reported to the caller. Accepted packets are
// delivered to the sink before OnRTPPacket returns. The input packet is
// not modified.
func (s *RTXReceiveStream) OnRTPPacket(packet *Packet) {
	if packet == nil {
		return
	}
	s.received.Add(1)

	payload := packet.Payload
	if len(payload) < RTXHeaderSize {
		s.droppedMalformed.Add(1)
		return
	}

	mediaPT, ok := s.payloadTypes.Load().Lookup(packet.PayloadType)
	if !ok {
		s.droppedUnknownPT.Add(1)
		s.logger.WithFields(logrus.Fields{
			"function":     "RTXReceiveStream.OnRTPPacket",
			"payload_type": packet.PayloadType,
			"rtx_ssrc":     packet.SSRC,
		}).Debug("Unknown payload type on rtx stream")
		return
	}

	media := &Packet{}
	media.CopyHeaderFrom(packet)
	media.SSRC = s.mediaSSRC
	media.SequenceNumber = binary.BigEndian.Uint16(payload[:RTXHeaderSize])
	media.PayloadType = mediaPT
	media.Recovered = true

	copy(media.AllocatePayload(len(payload)-RTXHeaderSize), payload[RTXHeaderSize:])

	s.recovered.Add(1)
	s.sink.OnRTPPacket(media)
}

// UpdatePayloadTypes atomically replaces the payload type association.
//
// Packets already inside OnRTPPacket finish with the snapshot they loaded.
func (s *RTXReceiveStream) UpdatePayloadTypes(payloadTypes PayloadTypeMap) {
	snapshot := payloadTypes
	s.payloadTypes.Store(&snapshot)
	s.warnIfEmpty(snapshot, "RTXReceiveStream.UpdatePayloadTypes")

	s.logger.WithFields(logrus.Fields{
		"function":      "RTXReceiveStream.UpdatePayloadTypes",
		"media_ssrc":    s.mediaSSRC,
		"payload_types": snapshot.String(),
	}).Info("RTX payload type association replaced")
}

// PayloadTypes returns the current payload type association.
func (s *RTXReceiveStream) PayloadTypes() PayloadTypeMap {
	return *s.payloadTypes.Load()
}

// MediaSSRC returns the SSRC recovered packets are restored onto.
func (s *RTXReceiveStream) MediaSSRC() uint32 {
	return s.mediaSSRC
}

// Statistics returns a snapshot of the stream's counters.
func (s *RTXReceiveStream) Statistics() RTXStatistics {
	return RTXStatistics{
		Received:                  s.received.Load(),
		Recovered:                 s.recovered.Load(),
		DroppedMalformed:          s.droppedMalformed.Load(),
		DroppedUnknownPayloadType: s.droppedUnknownPT.Load(),
	}
}

func (s *RTXReceiveStream) warnIfEmpty(payloadTypes PayloadTypeMap, function string) {
	if payloadTypes.Len() != 0 {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"function":   function,
		"media_ssrc": s.mediaSSRC,
	}).Warn("RTX receive stream has empty payload type mapping")
}
