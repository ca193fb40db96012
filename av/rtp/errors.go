package rtp

import "errors"

// Sentinel errors for rtp package operations.
// These errors enable reliable error classification using errors.Is().

// Construction errors.
var (
	// ErrNilSink indicates a receive stream was created without a sink.
	ErrNilSink = errors.New("sink cannot be nil")

	// ErrNilTransport indicates an integration was created without a transport.
	ErrNilTransport = errors.New("transport cannot be nil")

	// ErrInvalidPayloadType indicates a payload type outside 0-127.
	ErrInvalidPayloadType = errors.New("invalid payload type")
)

// Session errors.
var (
	// ErrSessionExists indicates one of the stream's SSRCs is already routed.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound indicates no session is registered for the SSRC.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSSRCConflict indicates the media and RTX SSRCs of a stream are equal.
	ErrSSRCConflict = errors.New("media and rtx ssrc must differ")

	// ErrSessionClosed indicates the session no longer accepts packets.
	ErrSessionClosed = errors.New("session is closed")
)

// Packet errors.
var (
	// ErrEmptyPacket indicates zero bytes of RTP data.
	ErrEmptyPacket = errors.New("RTP data cannot be empty")

	// ErrUnknownSSRC indicates a packet for a stream no session handles.
	ErrUnknownSSRC = errors.New("unknown ssrc")
)

// SDP errors.
var (
	// ErrInvalidSDP indicates the session description could not be used.
	ErrInvalidSDP = errors.New("invalid session description")
)
