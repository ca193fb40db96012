// Package rtp provides RTP transport integration for toxrtx.
//
// This file handles the integration between receive sessions and a
// datagram transport, routing each RTP packet to the session that owns
// its SSRC.
package rtp

import (
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/toxrtx/limits"
	"github.com/opd-ai/toxrtx/transport"
	"github.com/sirupsen/logrus"
)

// TransportIntegration manages receive sessions over a datagram transport.
//
// Each session is reachable through both its media SSRC and its RTX SSRC.
type TransportIntegration struct {
	mu        sync.RWMutex
	transport transport.Transport
	logger    logrus.FieldLogger
	sessions  map[uint32]*Session // media SSRC -> Session
	bySSRC    map[uint32]*Session // media or RTX SSRC -> Session
}

// NewTransportIntegration creates a new RTP transport integration.
//
// Parameters:
//   - transport: The datagram transport to integrate with
//   - logger: Diagnostics destination, nil for the standard logger
//
// Returns:
//   - *TransportIntegration: New integration instance
//   - error: Any error that occurred during setup
func NewTransportIntegration(transport transport.Transport, logger logrus.FieldLogger) (*TransportIntegration, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if transport == nil {
		logger.WithFields(logrus.Fields{
			"function": "NewTransportIntegration",
			"error":    ErrNilTransport.Error(),
		}).Error("Invalid transport")
		return nil, ErrNilTransport
	}

	integration := &TransportIntegration{
		transport: transport,
		logger:    logger,
		sessions:  make(map[uint32]*Session),
		bySSRC:    make(map[uint32]*Session),
	}

	transport.RegisterHandler(integration.HandleDatagram)

	logger.WithFields(logrus.Fields{
		"function":   "NewTransportIntegration",
		"local_addr": addrString(transport.LocalAddr()),
	}).Info("RTP transport integration created successfully")

	return integration, nil
}

// CreateSession creates a receive session for a media stream and its RTX stream.
//
// Parameters:
//   - config: SSRCs and payload type association for the stream
//   - sink: Consumer of media and recovered packets
//
// Returns:
//   - *Session: The created session
//   - error: Any error that occurred during session creation
func (ti *TransportIntegration) CreateSession(config StreamConfig, sink PacketSink) (*Session, error) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, ssrc := range []uint32{config.MediaSSRC, config.RTXSSRC} {
		if _, exists := ti.bySSRC[ssrc]; exists {
			return nil, fmt.Errorf("%w for ssrc %d", ErrSessionExists, ssrc)
		}
	}

	session, err := NewSession(config, sink, ti.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create RTP session: %w", err)
	}

	ti.sessions[config.MediaSSRC] = session
	ti.bySSRC[config.MediaSSRC] = session
	ti.bySSRC[config.RTXSSRC] = session

	ti.logger.WithFields(logrus.Fields{
		"function":   "CreateSession",
		"name":       config.Name,
		"media_ssrc": config.MediaSSRC,
		"rtx_ssrc":   config.RTXSSRC,
	}).Debug("Registered receive session")

	return session, nil
}

// GetSession retrieves the session for a media SSRC.
func (ti *TransportIntegration) GetSession(mediaSSRC uint32) (*Session, bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	session, exists := ti.sessions[mediaSSRC]
	return session, exists
}

// CloseSession closes and removes the session for a media SSRC.
func (ti *TransportIntegration) CloseSession(mediaSSRC uint32) error {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	session, exists := ti.sessions[mediaSSRC]
	if !exists {
		return fmt.Errorf("%w for ssrc %d", ErrSessionNotFound, mediaSSRC)
	}

	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	config := session.Config()
	delete(ti.sessions, config.MediaSSRC)
	delete(ti.bySSRC, config.MediaSSRC)
	delete(ti.bySSRC, config.RTXSSRC)

	ti.logger.WithFields(logrus.Fields{
		"function":   "CloseSession",
		"media_ssrc": config.MediaSSRC,
		"rtx_ssrc":   config.RTXSSRC,
	}).Debug("Removed receive session")

	return nil
}

// HandleDatagram parses one datagram as RTP and routes it by SSRC.
//
// It is registered as the transport's handler and may also be fed
// directly, for example from a capture replay.
func (ti *TransportIntegration) HandleDatagram(data []byte, addr net.Addr) error {
	if err := limits.ValidateRTPDatagram(data); err != nil {
		return err
	}

	packet, err := ParsePacket(data)
	if err != nil {
		return err
	}

	ti.mu.RLock()
	session, exists := ti.bySSRC[packet.SSRC]
	ti.mu.RUnlock()

	if !exists {
		ti.logger.WithFields(logrus.Fields{
			"function":    "HandleDatagram",
			"ssrc":        packet.SSRC,
			"remote_addr": addrString(addr),
		}).Debug("No session found for ssrc")
		return fmt.Errorf("%w: %d", ErrUnknownSSRC, packet.SSRC)
	}

	return session.ReceivePacket(packet)
}

// GetAllSessions returns all active sessions keyed by media SSRC.
func (ti *TransportIntegration) GetAllSessions() map[uint32]*Session {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	// Return a copy to prevent external modification
	sessions := make(map[uint32]*Session, len(ti.sessions))
	for ssrc, session := range ti.sessions {
		sessions[ssrc] = session
	}

	return sessions
}

// Close closes all sessions. The transport itself is left to its owner.
func (ti *TransportIntegration) Close() error {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for ssrc, session := range ti.sessions {
		if err := session.Close(); err != nil {
			// Log error but continue closing other sessions
			ti.logger.WithFields(logrus.Fields{
				"function":   "Close",
				"media_ssrc": ssrc,
				"error":      err.Error(),
			}).Error("Error closing session")
		}
	}

	ti.sessions = make(map[uint32]*Session)
	ti.bySSRC = make(map[uint32]*Session)

	return nil
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
