package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// receiveBuffer bounds inbound frames waiting for the consumer. Frames
// arriving while the buffer is full are dropped; the protocol recovers on
// the next round.
const receiveBuffer = 256

// UDP is the datagram transport used between devices. One socket serves both
// directions: a background loop reads inbound frames onto the receive
// channel, and Send writes directly to the peer's address.
type UDP struct {
	conn net.PacketConn
	log  *slog.Logger

	inbox chan Message
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewUDP opens a UDP transport bound to listenAddr (host:port, port 0 picks
// a free port). A nil logger disables logging.
func NewUDP(listenAddr string, log *slog.Logger) (*UDP, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	t := &UDP{
		conn:  conn,
		log:   log,
		inbox: make(chan Message, receiveBuffer),
		done:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t, nil
}

func (t *UDP) readLoop() {
	defer t.wg.Done()
	defer close(t.inbox)

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.log.Warn("transport read failed", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		msg := Message{From: from.String(), Data: data}

		select {
		case t.inbox <- msg:
		default:
			t.log.Warn("inbound frame dropped, receive buffer full", "from", msg.From)
		}
	}
}

// Send implements Transport.
func (t *UDP) Send(ctx context.Context, addr string, data []byte) error {
	if len(data) > MaxDatagramSize {
		return ErrFrameTooLarge
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return &SendError{Addr: addr, Cause: err}
	}
	if _, err := t.conn.WriteTo(data, dst); err != nil {
		return &SendError{Addr: addr, Cause: err}
	}
	return nil
}

// Receive implements Transport.
func (t *UDP) Receive() <-chan Message {
	return t.inbox
}

// LocalAddr implements Transport.
func (t *UDP) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Close implements Transport.
func (t *UDP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	err := t.conn.Close()
	t.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
