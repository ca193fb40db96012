package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/toxrtx/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so shutdown is noticed promptly.
const readTimeout = 100 * time.Millisecond

// UDPTransport receives RTP datagrams on a UDP socket.
// It satisfies the Transport interface.
//
// Datagrams are handed to the registered handler one at a time on the
// read goroutine, in arrival order.
type UDPTransport struct {
	conn    net.PacketConn
	handler DatagramHandler
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewUDPTransport creates a new UDP transport listener.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport := &UDPTransport{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP transport listening")

	go transport.processPackets()

	return transport, nil
}

// RegisterHandler registers the handler for incoming datagrams.
func (t *UDPTransport) RegisterHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// Close shuts down the transport and waits for the read loop to exit.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// processPackets handles incoming datagrams until the transport is closed.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.ReadBufferSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingDatagram(buffer)
		}
	}
}

// processIncomingDatagram reads a single datagram and dispatches a copy of it.
func (t *UDPTransport) processIncomingDatagram(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		t.handleReadError(err)
		return
	}
	if n > limits.MaxDatagram {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.processIncomingDatagram",
			"remote_addr": addr.String(),
		}).Debug("Discarding oversize datagram")
		return
	}

	data := make([]byte, n)
	copy(data, buffer[:n])
	t.dispatch(data, addr)
}

// handleReadError logs read failures other than deadline expiry and shutdown.
func (t *UDPTransport) handleReadError(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.handleReadError",
		"error":    err.Error(),
	}).Warn("UDP read failed")
}

func (t *UDPTransport) dispatch(data []byte, addr net.Addr) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return
	}
	if err := handler(data, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.dispatch",
			"remote_addr": addr.String(),
			"error":       err.Error(),
		}).Debug("Datagram handler rejected packet")
	}
}
