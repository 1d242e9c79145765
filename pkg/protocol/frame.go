package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout: a 4-byte unsigned big-endian payload length followed by
// that many bytes of one encoded envelope.
const (
	// LengthSize is the size of the frame length prefix.
	LengthSize = 4

	// DefaultMaxFrame is the payload cap applied when none is configured.
	DefaultMaxFrame = 16 << 20
)

var (
	// ErrEmptyFrame is returned for zero-length frames, which are invalid
	// in both directions.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrFrameTooLarge is returned when a frame payload exceeds the cap.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// ReadFrame reads one length-prefixed frame payload from r. A max of zero
// applies DefaultMaxFrame.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	var header [LengthSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if max == 0 {
		max = DefaultMaxFrame
	}
	if length > max {
		return nil, fmt.Errorf("%w: %d bytes (cap %d)", ErrFrameTooLarge, length, max)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame payload to w. A max of zero
// applies DefaultMaxFrame.
func WriteFrame(w io.Writer, payload []byte, max uint32) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if max == 0 {
		max = DefaultMaxFrame
	}
	if uint64(len(payload)) > uint64(max) {
		return fmt.Errorf("%w: %d bytes (cap %d)", ErrFrameTooLarge, len(payload), max)
	}
	var header [LengthSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadClient reads and decodes one client message from r.
func ReadClient(r io.Reader, max uint32) (ClientMessage, error) {
	payload, err := ReadFrame(r, max)
	if err != nil {
		return nil, err
	}
	return DecodeClient(payload)
}

// ReadServer reads and decodes one server message from r.
func ReadServer(r io.Reader, max uint32) (ServerMessage, error) {
	payload, err := ReadFrame(r, max)
	if err != nil {
		return nil, err
	}
	return DecodeServer(payload)
}

// WriteClient encodes and writes one client message to w.
func WriteClient(w io.Writer, m ClientMessage, max uint32) error {
	payload, err := EncodeClient(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload, max)
}

// WriteServer encodes and writes one server message to w.
func WriteServer(w io.Writer, m ServerMessage, max uint32) error {
	payload, err := EncodeServer(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload, max)
}
