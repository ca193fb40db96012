package transport

import (
	"net"
)

// DatagramHandler is a function that processes one received datagram.
//
// The handler owns data; transports never reuse a buffer after passing it.
type DatagramHandler func(data []byte, addr net.Addr) error

// Transport defines the interface for datagram sources feeding the RTP
// receive path. This abstraction allows live sockets and capture replay
// to be used interchangeably.
type Transport interface {
	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// RegisterHandler registers the handler for incoming datagrams,
	// replacing any previous one.
	RegisterHandler(handler DatagramHandler)
}
