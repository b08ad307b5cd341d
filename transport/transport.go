package transport

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/maxpoletaev/krake/internal/generic"
)

const (
	MaxPacketSize     = 1500 // implied by MTU
	receiveBufferSize = 1 * 1024 * 1024
)

var (
	ErrClosed          = errors.New("connection closed")
	ErrMaxSizeExceeded = errors.New("max payload size exceeded")
)

// UDPTransport sends and receives datagrams over a single UDP socket.
// ReadFrom and WriteTo may be called concurrently.
type UDPTransport struct {
	conn     *net.UDPConn
	resolved generic.SyncMap[string, *net.UDPAddr]
	closed   int32
}

// Create starts a UDP listener on the given host:port address. Port 0 picks
// an ephemeral port.
func Create(bindAddr string) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address %s: %w", bindAddr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen udp port on %s: %w", addr, err)
	}

	// Set system buffer to larger size to reduce the number of packet drops
	// when the consumer is too busy to keep up with the incoming message rate.
	if err := conn.SetReadBuffer(receiveBufferSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to alter udp read buffer size: %w", err)
	}

	return &UDPTransport{conn: conn}, nil
}

// LocalAddr returns the address the socket is bound to.
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// ReadFrom blocks until a datagram arrives and copies it into buf. Returns
// ErrClosed once the transport has been closed.
func (t *UDPTransport) ReadFrom(buf []byte) (int, string, error) {
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if atomic.LoadInt32(&t.closed) == 1 || errors.Is(err, net.ErrClosed) {
			return 0, "", ErrClosed
		}

		return 0, "", fmt.Errorf("failed to read from udp socket: %w", err)
	}

	return n, addr.String(), nil
}

// WriteTo sends a single datagram to the given host:port address.
func (t *UDPTransport) WriteTo(b []byte, addr string) error {
	if len(b) > MaxPacketSize {
		return ErrMaxSizeExceeded
	}

	udpAddr, err := t.resolve(addr)
	if err != nil {
		return err
	}

	if _, err = t.conn.WriteToUDP(b, udpAddr); err != nil {
		if atomic.LoadInt32(&t.closed) == 1 {
			return ErrClosed
		}

		return fmt.Errorf("failed to send message to udp socket: %w", err)
	}

	return nil
}

func (t *UDPTransport) resolve(addr string) (*net.UDPAddr, error) {
	if udpAddr, ok := t.resolved.Load(addr); ok {
		return udpAddr, nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	t.resolved.Store(addr, udpAddr)

	return udpAddr, nil
}

// Close closes the socket and unblocks pending reads. Subsequent calls are no-op.
func (t *UDPTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}

	return t.conn.Close()
}
