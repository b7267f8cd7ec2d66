package transport

import (
	"context"
	"sync"
)

// Mesh is an in-process network of memory transports. It delivers frames
// synchronously between nodes and can partition pairs of nodes to simulate
// disconnected devices.
type Mesh struct {
	mu          sync.Mutex
	nodes       map[string]*Memory
	partitioned map[[2]string]bool
}

// NewMesh creates an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{
		nodes:       make(map[string]*Memory),
		partitioned: make(map[[2]string]bool),
	}
}

// Node creates (or returns) the transport registered at addr.
func (m *Mesh) Node(addr string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes[addr]; ok {
		return node
	}
	node := &Memory{
		mesh:  m,
		addr:  addr,
		inbox: make(chan Message, receiveBuffer),
	}
	m.nodes[addr] = node
	return node
}

// Partition blocks delivery between a and b in both directions.
func (m *Mesh) Partition(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitioned[pairKey(a, b)] = true
}

// Heal restores delivery between a and b.
func (m *Mesh) Heal(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitioned, pairKey(a, b))
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// deliver routes a frame to the destination node's inbox. Frames to unknown
// or partitioned destinations are dropped silently, matching datagram
// semantics.
func (m *Mesh) deliver(from, to string, data []byte) {
	m.mu.Lock()
	node, ok := m.nodes[to]
	blocked := m.partitioned[pairKey(from, to)]
	m.mu.Unlock()

	if !ok || blocked {
		return
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	// Sending is guarded by the node lock so Close cannot race the send.
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.closed {
		return
	}
	select {
	case node.inbox <- Message{From: from, Data: frame}:
	default:
	}
}

// Memory is a mesh-backed Transport for tests and single-process setups.
type Memory struct {
	mesh *Mesh
	addr string

	mu     sync.Mutex
	closed bool
	inbox  chan Message
}

// Send implements Transport.
func (t *Memory) Send(ctx context.Context, addr string, data []byte) error {
	if len(data) > MaxDatagramSize {
		return ErrFrameTooLarge
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mesh.deliver(t.addr, addr, data)
	return nil
}

// Receive implements Transport.
func (t *Memory) Receive() <-chan Message {
	return t.inbox
}

// LocalAddr implements Transport.
func (t *Memory) LocalAddr() string {
	return t.addr
}

// Close implements Transport.
func (t *Memory) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.inbox)
	return nil
}
