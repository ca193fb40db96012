// Package transport provides datagram sources for the toxrtx receive path.
//
// # Architecture
//
// Every source delivers raw datagrams to a single DatagramHandler, which in
// practice is the SSRC demux of an av/rtp.TransportIntegration:
//
//	type Transport interface {
//	    Close() error
//	    LocalAddr() net.Addr
//	    RegisterHandler(handler DatagramHandler)
//	}
//
// # Live Capture
//
//	transport, err := transport.NewUDPTransport(":5004")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer transport.Close()
//
// The UDP transport runs one read goroutine and calls the handler
// synchronously for each datagram, so the handler sees packets in arrival
// order. A slow handler delays subsequent reads.
//
// # Capture Replay
//
// Recorded sessions can be replayed from a pcap file without a socket:
//
//	f, _ := os.Open("call.pcap")
//	n, err := transport.PCAPReplay(ctx, f, 5004, integration.HandleDatagram)
//
// Replay decodes Ethernet/IP/UDP with gopacket and delivers UDP payloads
// addressed to the given port.
package transport
