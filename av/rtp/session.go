// Package rtp provides the RTP receive path for toxrtx.
//
// This file pairs a media stream with its retransmission stream so that
// original and recovered packets converge on a single downstream sink.
package rtp

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// StreamConfig describes one media stream and its RTX stream.
type StreamConfig struct {
	// Name is a free-form label used in logs, typically the SDP mid.
	Name string

	MediaSSRC uint32
	RTXSSRC   uint32

	// PayloadTypes maps RTX payload types to media payload types.
	PayloadTypes map[uint8]uint8
}

// Validate checks the configuration for values no session can use.
func (c StreamConfig) Validate() error {
	if c.MediaSSRC == c.RTXSSRC {
		return fmt.Errorf("%w: both are %d", ErrSSRCConflict, c.MediaSSRC)
	}
	if _, err := NewPayloadTypeMap(c.PayloadTypes); err != nil {
		return err
	}
	return nil
}

// SessionStatistics tracks packet flow through a session.
type SessionStatistics struct {
	MediaPackets     uint64
	RecoveredPackets uint64
	DroppedClosed    uint64
	LastActivity     time.Time
	RTX              RTXStatistics
}

// Session represents the receive side of one media stream.
//
// Media packets are passed to the sink unchanged. RTX packets are
// unwrapped by the session's RTXReceiveStream, whose sink is the session
// itself, and then delivered to the same downstream sink.
type Session struct {
	mu      sync.RWMutex
	config  StreamConfig
	created time.Time
	closed  bool

	sink         PacketSink
	rtx          *RTXReceiveStream
	timeProvider TimeProvider

	stats SessionStatistics
}

// NewSession creates a receive session for a media/RTX stream pair.
//
// Parameters:
//   - config: SSRCs and payload type association for the stream
//   - sink: Downstream consumer of media and recovered packets
//   - logger: Diagnostics destination, nil for the standard logger
//
// Returns:
//   - *Session: The new session
//   - error: Any error that occurred during setup
func NewSession(config StreamConfig, sink PacketSink, logger logrus.FieldLogger) (*Session, error) {
	return NewSessionWithTimeProvider(config, sink, logger, nil)
}

// NewSessionWithTimeProvider is like NewSession with an injectable clock.
func NewSessionWithTimeProvider(config StreamConfig, sink PacketSink, logger logrus.FieldLogger, tp TimeProvider) (*Session, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	if config.PayloadTypes != nil {
		config.PayloadTypes = copyPayloadTypes(config.PayloadTypes)
	}

	payloadTypes, err := NewPayloadTypeMap(config.PayloadTypes)
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:       config,
		created:      tp.Now(),
		sink:         sink,
		timeProvider: tp,
	}

	rtx, err := NewRTXReceiveStream(PacketSinkFunc(s.onRecovered), payloadTypes, config.MediaSSRC, WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create rtx receive stream: %w", err)
	}
	s.rtx = rtx

	return s, nil
}

// Config returns the stream configuration the session was created with.
// The PayloadTypes map is a copy; changing it does not affect the session.
func (s *Session) Config() StreamConfig {
	config := s.config
	if config.PayloadTypes != nil {
		config.PayloadTypes = copyPayloadTypes(config.PayloadTypes)
	}
	return config
}

// Created returns the session creation time.
func (s *Session) Created() time.Time {
	return s.created
}

// RTXStream returns the session's RTX receive stream.
func (s *Session) RTXStream() *RTXReceiveStream {
	return s.rtx
}

// ReceivePacket routes a parsed packet by its SSRC.
//
// Returns:
//   - error: ErrSessionClosed after Close, ErrUnknownSSRC if the packet
//     belongs to neither of the session's streams
func (s *Session) ReceivePacket(packet *Packet) error {
	switch packet.SSRC {
	case s.config.MediaSSRC:
		return s.receiveMedia(packet)
	case s.config.RTXSSRC:
		if s.isClosed() {
			s.countClosedDrop()
			return ErrSessionClosed
		}
		s.rtx.OnRTPPacket(packet)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownSSRC, packet.SSRC)
	}
}

func (s *Session) receiveMedia(packet *Packet) error {
	s.mu.Lock()
	if s.closed {
		s.stats.DroppedClosed++
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.stats.MediaPackets++
	s.stats.LastActivity = s.timeProvider.Now()
	sink := s.sink
	s.mu.Unlock()

	sink.OnRTPPacket(packet)
	return nil
}

// onRecovered receives packets restored by the RTX stream.
func (s *Session) onRecovered(packet *Packet) {
	s.mu.Lock()
	if s.closed {
		s.stats.DroppedClosed++
		s.mu.Unlock()
		return
	}
	s.stats.RecoveredPackets++
	s.stats.LastActivity = s.timeProvider.Now()
	sink := s.sink
	s.mu.Unlock()

	sink.OnRTPPacket(packet)
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) countClosedDrop() {
	s.mu.Lock()
	s.stats.DroppedClosed++
	s.mu.Unlock()
}

// GetStatistics returns current session statistics.
func (s *Session) GetStatistics() SessionStatistics {
	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()

	stats.RTX = s.rtx.Statistics()
	return stats
}

// Close stops delivery to the sink. Packets received afterwards are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
