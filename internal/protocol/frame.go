// Package protocol implements the wire framing and envelope encoding shared
// by the server and client halves of the relay.
//
// Every frame on the wire is a 4-byte big-endian length prefix followed by
// that many payload bytes:
//
//	[4 bytes: length (uint32, big-endian)][length bytes: payload]
//
// Before the handshake completes the payload is a plaintext JSON envelope.
// From the frame following session-init onward, the payload is
// nonce(12) || ciphertext || tag(16) for AES-256-GCM, and the plaintext it
// decrypts to is itself a JSON envelope.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length of the frame's length prefix, in bytes.
const HeaderSize = 4

// MaxFrameSize is the largest payload a frame may carry. Reads of a
// declared length beyond this are a fatal protocol error.
const MaxFrameSize = 65536

// ErrProtocol is returned for malformed frames: an oversize length prefix,
// or EOF in the middle of a length prefix or payload. A clean close is only
// legal between frames; mid-frame EOF is always a protocol error, never a
// plain io.EOF.
var ErrProtocol = errors.New("protocol: malformed frame")

// ReadFrame reads one length-prefixed frame from r.
//
// It returns io.EOF only when the stream is closed cleanly between frames
// (zero bytes read before the length prefix). Any other short read is
// wrapped in ErrProtocol, since it indicates a peer that died or misbehaved
// mid-frame rather than a clean shutdown.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading length prefix: %v", ErrProtocol, err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum %d", ErrProtocol, length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading payload: %v", ErrProtocol, err)
	}
	return payload, nil
}

// WriteFrame writes payload as a single length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds maximum %d", ErrProtocol, len(payload), MaxFrameSize)
	}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}
