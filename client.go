// Package cvmmap observes video frames published by another process through a
// named shared-memory segment.
//
// The producer writes raw pixels into the segment and sends a 14-byte
// notification per frame over ZeroMQ. A Client attaches to the segment once and
// then hands out the same zero-copy view for every notification:
//
//	c := cvmmap.New("psm_default", "ipc:///tmp/0")
//	for f, err := range c.Polling(ctx) {
//		if err != nil {
//			return err
//		}
//		h, w, ch := f.View.Shape()
//		...
//	}
//
// The view's bytes may change as soon as the loop resumes. Copy them if a
// stable snapshot is needed.
package cvmmap

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/bryanchriswhite/cvmmap/internal/channel"
	"github.com/bryanchriswhite/cvmmap/internal/frame"
	"github.com/bryanchriswhite/cvmmap/internal/protocol"
	"github.com/bryanchriswhite/cvmmap/internal/shm"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

type (
	Frame       = stream.Frame
	FrameHeader = protocol.FrameHeader
	View        = frame.View
	Stream      = stream.Stream
	Stats       = stream.Stats
	Channel     = channel.Channel
	SocketType  = channel.SocketType
)

const (
	SocketPull = channel.SocketPull
	SocketSub  = channel.SocketSub
)

type options struct {
	newChannel func() channel.Channel
	zmq        channel.ZMQOptions
	shmDir     string
	strict     bool
}

// Option configures a Client.
type Option func(*options)

// WithSocket selects the ZeroMQ socket type. Pull is the default.
func WithSocket(t SocketType) Option {
	return func(o *options) { o.zmq.Socket = t }
}

// WithTopic sets the SUB subscription prefix.
func WithTopic(topic string) Option {
	return func(o *options) { o.zmq.Topic = topic }
}

// WithHighWaterMark bounds the number of notifications queued on the client side.
func WithHighWaterMark(n int) Option {
	return func(o *options) { o.zmq.HighWaterMark = n }
}

// WithSharedMemoryDir overrides where named segments live (default /dev/shm).
func WithSharedMemoryDir(dir string) Option {
	return func(o *options) { o.shmDir = dir }
}

// WithStrictDimensions fails the stream when the frame shape changes.
func WithStrictDimensions(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithChannel supplies the notification channel for each new stream instead
// of a ZeroMQ socket. newChannel is called once per stream.
func WithChannel(newChannel func() Channel) Option {
	return func(o *options) { o.newChannel = newChannel }
}

// Client builds frame streams for one segment and one notification address.
type Client struct {
	segmentName string
	address     string
	opts        options

	mu      sync.Mutex
	streams map[*Stream]struct{}
	closed  bool
}

// New returns a client for the segment and channel address. Nothing is
// connected or attached until a stream starts.
func New(segmentName, address string, opts ...Option) *Client {
	c := &Client{
		segmentName: segmentName,
		address:     address,
		streams:     make(map[*Stream]struct{}),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// SegmentName returns the shared-memory segment name
func (c *Client) SegmentName() string {
	return c.segmentName
}

// Address returns the notification channel address
func (c *Client) Address() string {
	return c.address
}

// Stream returns a fresh, idle stream. Each stream owns its own channel and
// segment attachment. The stream is tracked until Close.
func (c *Client) Stream() *Stream {
	var ch channel.Channel
	if c.opts.newChannel != nil {
		ch = c.opts.newChannel()
	} else {
		ch = channel.NewZMQ(c.opts.zmq)
	}

	buf := shm.New(c.segmentName, shm.Options{
		Dir:             c.opts.shmDir,
		TrackForCleanup: false,
	})

	s := stream.New(ch, buf, c.address, stream.Options{
		StrictDimensions: c.opts.strict,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.Close()
		return s
	}
	for old := range c.streams {
		if old.State() == stream.StateClosed {
			delete(c.streams, old)
		}
	}
	c.streams[s] = struct{}{}
	return s
}

// Close closes every stream the client started. Streams requested afterwards
// are returned already closed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	streams := c.streams
	c.streams = make(map[*Stream]struct{})
	c.mu.Unlock()

	var errs []error
	for s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Polling starts a new stream and ranges over its frames until ctx is
// cancelled or the stream fails. Calling it again starts over with a new
// stream.
func (c *Client) Polling(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		s := c.Stream()
		defer s.Close()
		for f, err := range s.All(ctx) {
			if !yield(f, err) {
				return
			}
		}
	}
}
