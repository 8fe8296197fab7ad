// Package shm attaches to named shared-memory segments owned by another process.
//
// A Handle only ever opens an existing segment. It never creates, resizes or
// unlinks it unless TrackForCleanup is set, in which case Release behaves like
// an owner and removes the segment name.
package shm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultDir is where POSIX shm_open places named segments on Linux.
const DefaultDir = "/dev/shm"

var (
	ErrAttachmentFailed = errors.New("shared memory attachment failed")
	ErrSizeMismatch     = errors.New("shared memory segment smaller than requested")
	ErrAlreadyAttached  = errors.New("shared memory already attached")
	ErrNotAttached      = errors.New("shared memory not attached")
)

// Options configures how a Handle maps its segment.
type Options struct {
	// Dir is the directory holding named segments. Defaults to DefaultDir.
	Dir string
	// TrackForCleanup makes Release unlink the segment. Observers leave it false.
	TrackForCleanup bool
	// Writable maps the segment read-write instead of read-only.
	Writable bool
}

// Handle is a single attachment to a named segment.
type Handle struct {
	name string
	opts Options

	mu       sync.Mutex
	data     []byte
	attached bool
	released bool
}

// New returns an unattached handle for the segment name. A leading slash, as
// used by shm_open, is accepted and ignored.
func New(name string, opts Options) *Handle {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	return &Handle{
		name: strings.TrimPrefix(name, "/"),
		opts: opts,
	}
}

// Name returns the normalized segment name
func (h *Handle) Name() string {
	return h.name
}

// Path returns the filesystem path backing the segment
func (h *Handle) Path() string {
	return filepath.Join(h.opts.Dir, h.name)
}

// Attach maps the existing segment. The segment must be at least size bytes;
// the whole segment is mapped, so Len may exceed size. A handle attaches at
// most once in its lifetime, including after Release.
func (h *Handle) Attach(size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.attached || h.released {
		return fmt.Errorf("segment %q: %w", h.name, ErrAlreadyAttached)
	}
	if h.name == "" || strings.ContainsRune(h.name, '/') {
		return fmt.Errorf("invalid segment name %q: %w", h.name, ErrAttachmentFailed)
	}
	if size < 0 {
		return fmt.Errorf("segment %q: negative size %d: %w", h.name, size, ErrSizeMismatch)
	}

	data, err := mapSegment(h.Path(), size, h.opts.Writable)
	if err != nil {
		return fmt.Errorf("segment %q: %w", h.name, err)
	}

	h.data = data
	h.attached = true
	return nil
}

// Attached reports whether the segment is currently mapped
func (h *Handle) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

// Bytes returns the mapped segment. The slice aliases memory the producer
// keeps writing to.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Len returns the mapped length, or 0 when unattached
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data)
}

// Release unmaps the segment. It is safe to call more than once. The segment
// itself survives unless TrackForCleanup was set.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.attached {
		h.released = true
		return nil
	}

	err := unmapSegment(h.data)
	h.data = nil
	h.attached = false
	h.released = true
	if err != nil {
		return fmt.Errorf("failed to unmap segment %q: %w", h.name, err)
	}

	if h.opts.TrackForCleanup {
		if err := unlinkSegment(h.Path()); err != nil {
			return fmt.Errorf("failed to unlink segment %q: %w", h.name, err)
		}
	}
	return nil
}
