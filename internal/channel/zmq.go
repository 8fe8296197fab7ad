package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

// SocketType selects the ZeroMQ pattern used to receive notifications.
type SocketType string

const (
	SocketPull SocketType = "pull"
	SocketSub  SocketType = "sub"
)

// ZMQOptions configures a ZMQ channel.
type ZMQOptions struct {
	Socket SocketType
	// Topic is the SUB subscription prefix. Defaults to the producer's topic magic.
	Topic         string
	HighWaterMark int
}

// ZMQ receives notifications over a ZeroMQ PULL or SUB socket. Every part of
// a multipart message is delivered as its own datagram.
type ZMQ struct {
	opts ZMQOptions
	in   *inbox

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewZMQ returns an unconnected channel
func NewZMQ(opts ZMQOptions) *ZMQ {
	if opts.Socket == "" {
		opts.Socket = SocketPull
	}
	if opts.Socket == SocketSub && opts.Topic == "" {
		opts.Topic = string([]byte{protocol.TopicMagic})
	}
	return &ZMQ{
		opts: opts,
		in:   newInbox(opts.HighWaterMark),
	}
}

// Connect dials the producer and starts draining the socket into the inbox.
func (z *ZMQ) Connect(ctx context.Context, address string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return ErrClosed
	}
	if z.sock != nil {
		return fmt.Errorf("%w: already connected", ErrConnectFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log := logger.WithComponent("zmq")

	// The socket lives until Close, not until the connect context ends.
	sockCtx, cancel := context.WithCancel(context.Background())

	var sock zmq4.Socket
	switch z.opts.Socket {
	case SocketPull:
		sock = zmq4.NewPull(sockCtx)
	case SocketSub:
		sock = zmq4.NewSub(sockCtx)
	default:
		cancel()
		return fmt.Errorf("%w: unknown socket type %q", ErrConnectFailed, z.opts.Socket)
	}

	if err := sock.Dial(address); err != nil {
		sock.Close()
		cancel()
		return fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, address, err)
	}

	if z.opts.Socket == SocketSub {
		if err := sock.SetOption(zmq4.OptionSubscribe, z.opts.Topic); err != nil {
			sock.Close()
			cancel()
			return fmt.Errorf("%w: subscribe: %w", ErrConnectFailed, err)
		}
	}

	z.sock = sock
	z.cancel = cancel
	z.done = make(chan struct{})
	go z.readLoop(sockCtx, sock, z.done)

	log.Info().
		Str("address", address).
		Str("socket", string(z.opts.Socket)).
		Msg("Connected to notification channel")
	return nil
}

func (z *ZMQ) readLoop(ctx context.Context, sock zmq4.Socket, done chan struct{}) {
	defer close(done)

	log := logger.WithComponent("zmq")
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("Notification channel receive failed")
			}
			z.in.fail(fmt.Errorf("%w: %w", ErrDisconnected, err))
			return
		}
		for _, part := range msg.Frames {
			if err := z.in.push(ctx, part); err != nil {
				return
			}
		}
	}
}

func (z *ZMQ) connected() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.sock != nil
}

// Poll waits until a datagram is queued
func (z *ZMQ) Poll(ctx context.Context) error {
	if !z.connected() {
		return ErrNotConnected
	}
	return z.in.poll(ctx)
}

// Receive returns the next datagram, waiting if none is queued
func (z *ZMQ) Receive(ctx context.Context) ([]byte, error) {
	if !z.connected() {
		return nil, ErrNotConnected
	}
	return z.in.receive(ctx)
}

// Close shuts the socket and waits for the reader to exit
func (z *ZMQ) Close() error {
	z.in.fail(ErrClosed)

	z.mu.Lock()
	sock, cancel, done := z.sock, z.cancel, z.done
	already := z.closed
	z.closed = true
	z.mu.Unlock()

	if sock == nil || already {
		return nil
	}
	cancel()
	err := sock.Close()
	<-done
	return err
}
