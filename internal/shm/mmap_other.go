//go:build !unix

package shm

import (
	"errors"
	"fmt"
)

func mapSegment(path string, size int, writable bool) ([]byte, error) {
	return nil, fmt.Errorf("%w: %w", ErrAttachmentFailed, errors.ErrUnsupported)
}

func unmapSegment(data []byte) error {
	return nil
}

func unlinkSegment(path string) error {
	return errors.ErrUnsupported
}
