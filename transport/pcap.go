package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// PCAPReplay reads a pcap capture and delivers the payload of every UDP
// datagram addressed to port (0 matches any port) to handler, in capture
// order.
//
// Handler errors are logged and replay continues. Replay stops at the end
// of the capture or when ctx is cancelled.
//
// Returns:
//   - int: Number of datagrams delivered to the handler
//   - error: Capture read failure or ctx.Err()
func PCAPReplay(ctx context.Context, r io.Reader, port uint16, handler DatagramHandler) (int, error) {
	if handler == nil {
		return 0, fmt.Errorf("handler cannot be nil")
	}

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open pcap capture: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())

	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			logrus.WithFields(logrus.Fields{
				"function":  "PCAPReplay",
				"delivered": delivered,
			}).Info("PCAP replay complete")
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("failed to read pcap packet: %w", err)
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if port != 0 && uint16(udp.DstPort) != port {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}

		delivered++
		if err := handler(udp.Payload, sourceAddr(packet, udp)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PCAPReplay",
				"packet":   delivered,
				"error":    err.Error(),
			}).Debug("Datagram handler rejected packet")
		}
	}
}

// sourceAddr reconstructs the sender's UDP address from the decoded layers.
func sourceAddr(packet gopacket.Packet, udp *layers.UDP) net.Addr {
	addr := &net.UDPAddr{Port: int(udp.SrcPort)}
	if network := packet.NetworkLayer(); network != nil {
		addr.IP = net.IP(network.NetworkFlow().Src().Raw())
	}
	return addr
}

// captureAddr names a capture file as a local address.
type captureAddr string

func (a captureAddr) Network() string { return "pcap" }
func (a captureAddr) String() string  { return string(a) }

// PCAPTransport replays a capture through the Transport interface so the
// receive path can be driven offline exactly as it is by UDPTransport.
type PCAPTransport struct {
	mu      sync.RWMutex
	r       io.Reader
	name    string
	port    uint16
	handler DatagramHandler
}

// NewPCAPTransport creates a transport that replays r when Replay is called.
//
// Parameters:
//   - r: pcap capture stream
//   - name: Label reported by LocalAddr, typically the file name
//   - port: UDP destination port to replay, 0 for any
func NewPCAPTransport(r io.Reader, name string, port uint16) *PCAPTransport {
	return &PCAPTransport{r: r, name: name, port: port}
}

// RegisterHandler registers the handler for replayed datagrams.
func (t *PCAPTransport) RegisterHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// LocalAddr returns the capture's name.
func (t *PCAPTransport) LocalAddr() net.Addr {
	return captureAddr(t.name)
}

// Close releases the underlying reader if it is an io.Closer.
func (t *PCAPTransport) Close() error {
	if c, ok := t.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Replay delivers the capture to the registered handler. See PCAPReplay.
func (t *PCAPTransport) Replay(ctx context.Context) (int, error) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	return PCAPReplay(ctx, t.r, t.port, handler)
}
