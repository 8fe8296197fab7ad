package commands

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/cvmmap"
	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/output"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// current tracks the live stream so stats survive restarts
type current struct {
	s atomic.Pointer[cvmmap.Stream]
}

func (c *current) Stats() stream.Stats {
	if s := c.s.Load(); s != nil {
		return s.Stats()
	}
	return stream.Stats{}
}

// consume feeds frames to every output until ctx is done. A failed stream is
// replaced after retry; retry <= 0 returns the failure instead.
func consume(ctx context.Context, client *cvmmap.Client, live *current, retry time.Duration, outputs ...output.Output) error {
	log := logger.WithComponent("runner")

	for {
		s := client.Stream()
		live.s.Store(s)

		err := feed(ctx, s, outputs)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || retry <= 0 {
			return err
		}

		log.Warn().
			Err(err).
			Str("stream_id", s.ID()).
			Dur("retry_in", retry).
			Msg("Stream failed, restarting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func feed(ctx context.Context, s *cvmmap.Stream, outputs []output.Output) error {
	defer s.Close()
	log := logger.WithComponent("runner")

	for f, err := range s.All(ctx) {
		if err != nil {
			return err
		}
		for _, out := range outputs {
			if err := out.WriteFrame(f); err != nil {
				log.Warn().Err(err).Str("output", out.Name()).Uint32("frame_count", f.Header.FrameCount).Msg("Output failed to consume frame")
			}
		}
	}
	return nil
}
