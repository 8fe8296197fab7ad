package output

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

// DiskOutput writes every Nth frame to a directory
type DiskOutput struct {
	dir    string
	format string
	every  uint64

	mu      sync.Mutex
	running bool
	seen    uint64
	written uint64
}

// NewDiskOutput creates a writer for format png, bmp, tiff or raw
func NewDiskOutput(dir, format string, every int) (*DiskOutput, error) {
	switch format {
	case "png", "bmp", "tiff", "raw":
	default:
		return nil, fmt.Errorf("unsupported dump format: %s", format)
	}
	if every < 1 {
		every = 1
	}
	return &DiskOutput{
		dir:    dir,
		format: format,
		every:  uint64(every),
	}, nil
}

// Start creates the output directory
func (d *DiskOutput) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("disk output already running")
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	d.running = true
	logger.WithComponent("dump").Info().
		Str("dir", d.dir).
		Str("format", d.format).
		Uint64("every", d.every).
		Msg("Disk output started")
	return nil
}

// Stop marks the output as stopped
func (d *DiskOutput) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		logger.WithComponent("dump").Info().Uint64("written", d.written).Msg("Disk output stopped")
	}
	d.running = false
	return nil
}

// Name returns the output type name
func (d *DiskOutput) Name() string {
	return "Disk (" + d.format + ")"
}

// IsRunning returns true if the output is active
func (d *DiskOutput) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Written returns how many files have been written
func (d *DiskOutput) Written() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// PathFor returns the file a frame with the given count is written to
func (d *DiskOutput) PathFor(frameCount uint32) string {
	return filepath.Join(d.dir, fmt.Sprintf("frame_%08d.%s", frameCount, d.format))
}

// WriteFrame writes the frame if it is due
func (d *DiskOutput) WriteFrame(f stream.Frame) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("disk output not running")
	}
	due := d.seen%d.every == 0
	d.seen++
	d.mu.Unlock()

	if !due {
		return nil
	}

	path := d.PathFor(f.Header.FrameCount)
	if err := d.write(path, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	d.mu.Lock()
	d.written++
	d.mu.Unlock()

	logger.WithComponent("dump").Debug().
		Uint32("frame_count", f.Header.FrameCount).
		Str("path", path).
		Msg("Frame written")
	return nil
}

func (d *DiskOutput) write(path string, f stream.Frame) error {
	// Snapshot before touching the filesystem so the file holds one frame.
	var (
		raw []byte
		img image.Image
		err error
	)
	if d.format == "raw" {
		raw = f.View.Copy()
	} else if img, err = f.View.Image(); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := encode(file, d.format, raw, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func encode(w io.Writer, format string, raw []byte, img image.Image) error {
	switch format {
	case "raw":
		_, err := w.Write(raw)
		return err
	case "png":
		return png.Encode(w, img)
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported dump format: %s", format)
	}
}
