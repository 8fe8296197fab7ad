package output

import (
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// Output defines the interface for frame consumers fed by the stream loop:
// - MJPEG HTTP stream
// - frame dumps on disk
//
// WriteFrame is called from the stream goroutine and must finish reading the
// view before returning, since the producer overwrites it afterwards.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame consumes one frame
	WriteFrame(frame stream.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// FPS caps how often frames are encoded; 0 means every frame
	FPS int
	// Quality is the JPEG quality (1-100)
	Quality int
	// Overlay stamps the frame header onto encoded images
	Overlay bool
}
