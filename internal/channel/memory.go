package channel

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Channel. The producer side calls Send and Fail.
type Memory struct {
	in *inbox

	mu        sync.Mutex
	connected bool
	address   string
}

// NewMemory returns a channel buffering up to hwm datagrams
func NewMemory(hwm int) *Memory {
	return &Memory{in: newInbox(hwm)}
}

// Connect records the address. An empty address cannot be resolved.
func (m *Memory) Connect(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrConnectFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.address = address
	return nil
}

// Address returns the address passed to Connect
func (m *Memory) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

func (m *Memory) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Poll waits until a datagram is queued
func (m *Memory) Poll(ctx context.Context) error {
	if !m.isConnected() {
		return ErrNotConnected
	}
	return m.in.poll(ctx)
}

// Receive returns the next datagram, waiting if none is queued
func (m *Memory) Receive(ctx context.Context) ([]byte, error) {
	if !m.isConnected() {
		return nil, ErrNotConnected
	}
	return m.in.receive(ctx)
}

// Send queues a datagram, blocking while the queue is at its high-water mark.
func (m *Memory) Send(ctx context.Context, b []byte) error {
	return m.in.push(ctx, b)
}

// Fail simulates a transport failure. Queued datagrams are still delivered,
// then Poll and Receive return err.
func (m *Memory) Fail(err error) {
	m.in.fail(fmt.Errorf("%w: %w", ErrDisconnected, err))
}

// Close stops delivery
func (m *Memory) Close() error {
	m.in.fail(ErrClosed)
	return nil
}
