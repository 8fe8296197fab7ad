// Package stream drives the notification loop: receive a header, attach the
// shared segment on first use, and hand out the same zero-copy view for every
// notification.
package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/cvmmap/internal/channel"
	"github.com/bryanchriswhite/cvmmap/internal/frame"
	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/protocol"
)

var (
	ErrStreamClosed      = errors.New("stream closed")
	ErrDimensionsChanged = errors.New("frame dimensions changed")
)

// Buffer is the shared segment a stream attaches to exactly once.
type Buffer interface {
	Attach(size int) error
	Bytes() []byte
	Len() int
	Release() error
}

// Options tunes stream behavior.
type Options struct {
	// StrictDimensions fails the stream with ErrDimensionsChanged when a
	// header's shape differs from the first one. By default the first view is
	// kept and the new shape is ignored.
	StrictDimensions bool
}

// Frame is one notification paired with the shared view. View is the same
// pointer for every Frame of a stream and its bytes change under the caller.
type Frame struct {
	Header protocol.FrameHeader
	View   *frame.View
}

// Stream is a single-use notification loop. A closed stream cannot be
// restarted; build a new one instead.
type Stream struct {
	id      string
	address string
	ch      channel.Channel
	buf     Buffer
	opts    Options
	log     zerolog.Logger

	mu     sync.Mutex
	state  State
	attach AttachState
	err    error

	// Owned by the goroutine calling Next.
	view         *frame.View
	first        protocol.FrameHeader
	shapeWarned  bool
	depthWarned  bool
	hasLastCount bool

	stats Stats
}

// New returns an idle stream reading notifications from ch at address and
// frames from buf.
func New(ch channel.Channel, buf Buffer, address string, opts Options) *Stream {
	id := uuid.NewString()
	return &Stream{
		id:      id,
		address: address,
		ch:      ch,
		buf:     buf,
		opts:    opts,
		log:     logger.WithComponent("stream").With().Str("stream_id", id).Logger(),
	}
}

// ID identifies the stream in logs and stats
func (s *Stream) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that closed the stream, if any
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a copy of the stream counters
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.ID = s.id
	st.Attach = s.attach
	st.State = s.state
	return st
}

// Connect moves an idle stream to connected. A failure closes the stream.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateIdle:
	case StateClosed:
		return ErrStreamClosed
	default:
		return nil
	}

	if err := s.ch.Connect(ctx, s.address); err != nil {
		s.shutdown(err)
		return err
	}

	s.setState(StateConnected)
	s.log.Debug().Str("address", s.address).Msg("Stream connected")
	return nil
}

// Next blocks until the next well-formed notification and returns it. The
// stream connects on first use. Malformed headers are logged and skipped.
// Any other failure, or ctx cancellation, closes the stream and releases the
// segment before returning.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	if err := s.Connect(ctx); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return Frame{}, ErrStreamClosed
	}
	s.state = StateStreaming
	s.mu.Unlock()

	for {
		b, err := s.receive(ctx)
		if err != nil {
			if s.State() == StateClosed {
				return Frame{}, ErrStreamClosed
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.shutdown(nil)
				return Frame{}, ctxErr
			}
			s.shutdown(err)
			return Frame{}, err
		}

		h, err := protocol.Decode(b)
		if err != nil {
			s.countMalformed()
			if len(b) == 1 && b[0] == protocol.TopicMagic {
				s.log.Debug().Msg("Skipping topic frame")
				continue
			}
			var merr *protocol.MalformedHeaderError
			if errors.As(err, &merr) {
				s.log.Warn().
					Err(err).
					Int("bytes", merr.Len).
					Str("dump", merr.Dump).
					Msg("Dropping malformed notification")
			}
			continue
		}

		if err := s.ensureView(h); err != nil {
			s.shutdown(err)
			return Frame{}, err
		}

		s.countYielded(h)
		return Frame{Header: h, View: s.view}, nil
	}
}

// All ranges over frames until ctx is cancelled or the stream fails. The
// final error, if any, is yielded once. Cancellation ends the sequence
// without an error. Breaking out of the loop closes the stream.
func (s *Stream) All(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := s.Next(ctx)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return
				}
				yield(Frame{}, err)
				return
			}
			if !yield(f, nil) {
				s.Close()
				return
			}
		}
	}
}

// Close releases the segment mapping and the channel. The segment itself is
// left in place. Views handed out earlier must not be read afterwards.
func (s *Stream) Close() error {
	return s.shutdown(nil)
}

func (s *Stream) receive(ctx context.Context) ([]byte, error) {
	if err := s.ch.Poll(ctx); err != nil {
		return nil, err
	}
	b, err := s.ch.Receive(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats.Received++
	s.mu.Unlock()
	return b, nil
}

// ensureView attaches and builds the view on the first header only.
func (s *Stream) ensureView(h protocol.FrameHeader) error {
	s.mu.Lock()
	attach := s.attach
	s.mu.Unlock()

	if attach == Attached {
		return s.checkShape(h)
	}

	if err := s.buf.Attach(int(h.BufferSize)); err != nil {
		return fmt.Errorf("failed to attach shared memory: %w", err)
	}

	s.mu.Lock()
	s.attach = Attached
	s.stats.SegmentBytes = s.buf.Len()
	s.mu.Unlock()

	view, err := frame.Build(s.buf, h)
	if err != nil {
		return fmt.Errorf("failed to build frame view: %w", err)
	}
	s.view = view
	s.first = h

	s.log.Info().
		Uint16("width", h.Width).
		Uint16("height", h.Height).
		Uint8("channels", h.Channels).
		Stringer("depth", h.Depth).
		Str("segment_size", humanize.Bytes(uint64(s.buf.Len()))).
		Uint32("declared_size", h.BufferSize).
		Msg("Attached shared memory")

	if h.Depth.ByteWidth() != 1 && !s.depthWarned {
		s.depthWarned = true
		s.log.Warn().
			Stringer("depth", h.Depth).
			Msg("Header declares a multi-byte depth; samples are still read as single bytes")
	}
	return nil
}

func (s *Stream) checkShape(h protocol.FrameHeader) error {
	if h.SameShape(s.first) {
		return nil
	}
	if s.opts.StrictDimensions {
		return fmt.Errorf("%w: (%d,%d,%d) -> (%d,%d,%d)", ErrDimensionsChanged,
			s.first.Height, s.first.Width, s.first.Channels, h.Height, h.Width, h.Channels)
	}
	if !s.shapeWarned {
		s.shapeWarned = true
		s.log.Warn().
			Str("first", fmt.Sprintf("%dx%dx%d", s.first.Width, s.first.Height, s.first.Channels)).
			Str("now", fmt.Sprintf("%dx%dx%d", h.Width, h.Height, h.Channels)).
			Msg("Frame dimensions changed; keeping the original view")
	}
	return nil
}

func (s *Stream) countMalformed() {
	s.mu.Lock()
	s.stats.Malformed++
	s.mu.Unlock()
}

func (s *Stream) countYielded(h protocol.FrameHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasLastCount && h.FrameCount != s.stats.LastFrameCount+1 {
		s.stats.Gaps++
	}
	s.hasLastCount = true
	s.stats.LastFrameCount = h.FrameCount
	s.stats.Yielded++
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = st
	}
}

// shutdown moves the stream to closed once, recording cause.
func (s *Stream) shutdown(cause error) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.err = cause
	s.mu.Unlock()

	var errs []error
	if err := s.buf.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.ch.Close(); err != nil && !errors.Is(err, channel.ErrClosed) {
		errs = append(errs, err)
	}

	ev := s.log.Info()
	if cause != nil {
		ev = s.log.Error().Err(cause)
	}
	ev.Msg("Stream closed")

	return errors.Join(errs...)
}
