package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", []byte{}},
		{"nil payload", nil},
		{"small payload", []byte("hello")},
		{"max payload", bytes.Repeat([]byte{0x42}, MaxFrameSize)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("WriteFrame() error = %v", err)
			}

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("got %v, want %v", got, tt.payload)
			}
		})
	}
}

func TestWriteFrameOversize(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteFrame(&buf, bytes.Repeat([]byte{0}, MaxFrameSize+1))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("WriteFrame() error = %v, want ErrProtocol", err)
	}
}

func TestReadFrameOversizeLength(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var header [4]byte
	header[0] = 0xFF // length way beyond MaxFrameSize
	buf.Write(header[:])

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadFrame() error = %v, want ErrProtocol", err)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := ReadFrame(&buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ReadFrame() error = %v, want io.EOF", err)
	}
}

func TestReadFrameMidLengthEOF(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer([]byte{0x00, 0x00})
	_, err := ReadFrame(buf)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadFrame() error = %v, want ErrProtocol", err)
	}
}

func TestReadFrameMidPayloadEOF(t *testing.T) {
	t.Parallel()

	var header [4]byte
	header[3] = 10 // declare 10 bytes, only supply 3
	buf := bytes.NewBuffer(append(header[:], []byte("abc")...))

	_, err := ReadFrame(buf)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadFrame() error = %v, want ErrProtocol", err)
	}
}

func TestReadFrameTwoFramesSequential(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("first")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	if err := WriteFrame(&buf, []byte("second")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	first, err := ReadFrame(&buf)
	if err != nil || string(first) != "first" {
		t.Fatalf("first frame = %q, %v", first, err)
	}
	second, err := ReadFrame(&buf)
	if err != nil || string(second) != "second" {
		t.Fatalf("second frame = %q, %v", second, err)
	}

	if _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadFrame() after last frame error = %v, want io.EOF", err)
	}
}
