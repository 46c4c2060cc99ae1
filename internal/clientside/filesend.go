package clientside

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
	"github.com/cmdrelay/cmdrelay/internal/session"
	"github.com/google/uuid"
)

// ChunkSize matches the server's expected file-chunk payload size before
// base64 encoding.
const ChunkSize = 32 * 1024

// buildFileEnvelopes reads path and returns the file-start/file-chunk
// sequence needed to send it, in order. It refuses files over the server's
// transfer limit so the rejection happens locally, before a single byte is
// sent.
func buildFileEnvelopes(path string) ([]protocol.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > session.MaxTransferSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds the %d byte transfer limit", path, len(data), session.MaxTransferSize)
	}

	totalChunks := (len(data) + ChunkSize - 1) / ChunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}
	transferID := uuid.New().String()
	filename := filepath.Base(path)

	envelopes := make([]protocol.Envelope, 0, totalChunks+1)
	envelopes = append(envelopes, protocol.Envelope{
		Type:        protocol.TypeFileStart,
		TransferID:  transferID,
		Filename:    filename,
		Size:        int64(len(data)),
		TotalChunks: totalChunks,
	})
	for i := 0; i < totalChunks; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		envelopes = append(envelopes, protocol.Envelope{
			Type:       protocol.TypeFileChunk,
			TransferID: transferID,
			Index:      i,
			DataB64:    base64.StdEncoding.EncodeToString(data[start:end]),
		})
	}
	return envelopes, nil
}
