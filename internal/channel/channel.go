// Package channel provides the push-style message sources that deliver frame
// notifications.
package channel

import (
	"context"
	"errors"
	"sync"
)

// DefaultHighWaterMark is the number of undelivered datagrams buffered before
// the receiving side stops draining the transport.
const DefaultHighWaterMark = 16

var (
	ErrConnectFailed = errors.New("channel connect failed")
	ErrDisconnected  = errors.New("channel disconnected")
	ErrNotConnected  = errors.New("channel not connected")
	ErrClosed        = errors.New("channel closed")
)

// Channel is a single-consumer source of datagrams. Poll suspends until a
// datagram is ready; Receive returns it. Both honor ctx cancellation.
type Channel interface {
	Connect(ctx context.Context, address string) error
	Poll(ctx context.Context) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// inbox queues datagrams between a transport reader and the single consumer.
// Datagrams already queued are still delivered after a failure.
type inbox struct {
	msgs    chan []byte
	pending []byte
	ready   bool

	failOnce sync.Once
	failed   chan struct{}
	err      error
}

func newInbox(hwm int) *inbox {
	if hwm <= 0 {
		hwm = DefaultHighWaterMark
	}
	return &inbox{
		msgs:   make(chan []byte, hwm),
		failed: make(chan struct{}),
	}
}

func (in *inbox) push(ctx context.Context, b []byte) error {
	select {
	case <-in.failed:
		return in.err
	default:
	}
	select {
	case in.msgs <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-in.failed:
		return in.err
	}
}

func (in *inbox) fail(err error) {
	in.failOnce.Do(func() {
		in.err = err
		close(in.failed)
	})
}

func (in *inbox) poll(ctx context.Context) error {
	if in.ready {
		return nil
	}
	select {
	case b := <-in.msgs:
		in.pending, in.ready = b, true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-in.failed:
		select {
		case b := <-in.msgs:
			in.pending, in.ready = b, true
			return nil
		default:
			return in.err
		}
	}
}

func (in *inbox) receive(ctx context.Context) ([]byte, error) {
	if err := in.poll(ctx); err != nil {
		return nil, err
	}
	b := in.pending
	in.pending, in.ready = nil, false
	return b, nil
}
