// Package rtp provides the RTP receive path for toxrtx, centred on recovery
// of packets retransmitted on an RTX stream (RFC 4588).
//
// This package handles RTP packet parsing, RTX unwrapping and routing of
// packets from a datagram transport to per-stream sessions. It uses the
// pion/rtp library for standards-compliant RTP packet handling.
//
// # Architecture Overview
//
//   - Packet: A pion/rtp packet plus the Recovered provenance flag
//   - PacketSink: Synchronous consumer of media and recovered packets
//   - PayloadTypeMap: Immutable RTX to media payload type association
//   - RTXReceiveStream: Restores RTX packets onto the media stream
//   - Session: Pairs a media SSRC with its RTX SSRC
//   - TransportIntegration: Routes datagrams to sessions by SSRC
//   - ParseStreamConfigs: Reads stream configuration from an SDP blob
//
// # RTX Unwrapping
//
// An RTX payload starts with the original sequence number (big-endian,
// two bytes) followed by the original payload:
//
//	payloadTypes, _ := rtp.NewPayloadTypeMap(map[uint8]uint8{97: 96})
//	stream, err := rtp.NewRTXReceiveStream(sink, payloadTypes, mediaSSRC)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stream.OnRTPPacket(rtxPacket)
//
// OnRTPPacket never fails. Packets whose payload is shorter than two bytes,
// or whose payload type has no association, are dropped and counted in
// Statistics. Accepted packets reach the sink before OnRTPPacket returns,
// with SSRC, sequence number and payload type restored and Recovered set.
//
// An empty association is accepted but logged as a warning, since the
// stream cannot recover anything until UpdatePayloadTypes installs a
// non-empty one.
//
// # Payload Type Updates
//
// The association is never modified in place. UpdatePayloadTypes swaps in
// a whole new snapshot through an atomic pointer, keeping the receive path
// lock-free.
//
// # Session Management
//
//	integration, err := rtp.NewTransportIntegration(udpTransport, nil)
//	session, err := integration.CreateSession(rtp.StreamConfig{
//	    MediaSSRC:    1111,
//	    RTXSSRC:      2222,
//	    PayloadTypes: map[uint8]uint8{97: 96},
//	}, sink)
//	stats := session.GetStatistics()
//
// # Diagnostics
//
// Logging goes through logrus. Receive streams accept a logrus.FieldLogger
// via WithLogger so tests can capture entries with logrus/hooks/test.
// Unknown payload types are logged at Debug level, an empty association at
// Warn level; short payloads are only counted.
//
// # Thread Safety
//
// RTXReceiveStream takes no locks. Session and TransportIntegration use
// sync.RWMutex and are safe for concurrent use.
package rtp
