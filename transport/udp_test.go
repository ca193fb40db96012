package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedDatagram struct {
	data []byte
	addr net.Addr
}

func TestUDPTransport_DeliversDatagramsInOrder(t *testing.T) {
	transport, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer transport.Close()

	received := make(chan receivedDatagram, 8)
	transport.RegisterHandler(func(data []byte, addr net.Addr) error {
		received <- receivedDatagram{data: data, addr: addr}
		return nil
	})

	conn, err := net.Dial("udp", transport.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	payloads := [][]byte{{0x01, 0x02}, {0x03}, {0x04, 0x05, 0x06}}
	for _, p := range payloads {
		_, err := conn.Write(p)
		require.NoError(t, err)
	}

	for i, want := range payloads {
		select {
		case got := <-received:
			assert.Equal(t, want, got.data, "datagram %d", i)
			assert.Equal(t, conn.LocalAddr().String(), got.addr.String())
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for datagram %d", i)
		}
	}
}

func TestUDPTransport_HandlerOwnsBuffer(t *testing.T) {
	transport, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer transport.Close()

	var mu sync.Mutex
	var kept [][]byte
	done := make(chan struct{}, 2)
	transport.RegisterHandler(func(data []byte, addr net.Addr) error {
		mu.Lock()
		kept = append(kept, data)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	conn, err := net.Dial("udp", transport.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xAA, 0xAA})
	require.NoError(t, err)
	_, err = conn.Write([]byte{0xBB, 0xBB})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for datagrams")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{0xAA, 0xAA}, kept[0])
	assert.Equal(t, []byte{0xBB, 0xBB}, kept[1])
}

func TestUDPTransport_CloseStopsReadLoop(t *testing.T) {
	transport, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- transport.Close() }()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestNewUDPTransport_InvalidAddress(t *testing.T) {
	transport, err := NewUDPTransport("not-an-address")
	assert.Error(t, err)
	assert.Nil(t, transport)
}
