package epp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// headerSize is the length prefix. The declared length includes it.
const headerSize = 4

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrFrameTooShort = errors.New("frame length shorter than its header")
)

// ReadFrame reads one length-prefixed message and returns its payload.
// A declared length above maxSize is rejected before any payload is read.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(hdr[:])
	if total < headerSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooShort, total)
	}
	if maxSize > 0 && uint64(total) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, total, maxSize)
	}

	payload := make([]byte, total-headerSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(buf)))
	copy(buf[headerSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
