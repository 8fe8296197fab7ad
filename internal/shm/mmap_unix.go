//go:build unix

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func mapSegment(path string, size int, writable bool) ([]byte, error) {
	flags, prot := unix.O_RDONLY, unix.PROT_READ
	if writable {
		flags, prot = unix.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}

	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAttachmentFailed, path, err)
	}
	// The mapping outlives the descriptor.
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrAttachmentFailed, path, err)
	}
	if st.Size < int64(size) {
		return nil, fmt.Errorf("%w: segment is %d bytes, need %d", ErrSizeMismatch, st.Size, size)
	}
	if st.Size == 0 {
		return nil, fmt.Errorf("%w: segment %s is empty", ErrAttachmentFailed, path)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %w", ErrAttachmentFailed, path, err)
	}
	return data, nil
}

func unmapSegment(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

func unlinkSegment(path string) error {
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return err
	}
	return nil
}
