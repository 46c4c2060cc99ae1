package session

import "fmt"

// MaxTransferSize is the hard cap on a single file transfer.
const MaxTransferSize = 10 * 1024 * 1024 // 10 MiB

// Transfer tracks one in-progress inbound file reassembly. Chunk indices
// must arrive strictly in order — an out-of-order or duplicate index is a
// fatal session error, not a reordering to tolerate — and the accumulator
// must never be allowed to exceed the size the sender declared in
// file-start.
type Transfer struct {
	ID          string
	SenderID    uint64
	Filename    string
	TotalSize   int64
	TotalChunks int

	chunks    [][]byte
	nextIndex int
	received  int64
}

// NewTransfer validates a file-start announcement and returns a fresh
// reassembly buffer for it.
func NewTransfer(id string, senderID uint64, filename string, totalSize int64, totalChunks int) (*Transfer, error) {
	if totalSize < 0 || totalSize > MaxTransferSize {
		return nil, fmt.Errorf("transfer %s: declared size %d exceeds %d byte limit", id, totalSize, MaxTransferSize)
	}
	if totalChunks <= 0 {
		return nil, fmt.Errorf("transfer %s: total_chunks must be positive, got %d", id, totalChunks)
	}
	return &Transfer{
		ID:          id,
		SenderID:    senderID,
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		chunks:      make([][]byte, 0, totalChunks),
	}, nil
}

// AddChunk records the next file-chunk payload. index must equal the number
// of chunks already received — any gap, repeat, or out-of-range value is
// rejected as a protocol violation, and any chunk that would push the
// accumulator past the declared total size is rejected too.
func (t *Transfer) AddChunk(index int, data []byte) error {
	if index < 0 || index >= t.TotalChunks {
		return fmt.Errorf("transfer %s: chunk index %d out of range [0,%d)", t.ID, index, t.TotalChunks)
	}
	if index != t.nextIndex {
		return fmt.Errorf("transfer %s: out-of-order or duplicate chunk index %d, want %d", t.ID, index, t.nextIndex)
	}
	if t.received+int64(len(data)) > t.TotalSize {
		return fmt.Errorf("transfer %s: accumulated size would exceed declared total %d", t.ID, t.TotalSize)
	}
	t.chunks = append(t.chunks, data)
	t.nextIndex++
	t.received += int64(len(data))
	return nil
}

// Complete reports whether every chunk has arrived.
func (t *Transfer) Complete() bool {
	return len(t.chunks) == t.TotalChunks
}

// Assemble concatenates all chunks in order. It returns an error if any
// chunk has not arrived yet.
func (t *Transfer) Assemble() ([]byte, error) {
	if !t.Complete() {
		return nil, fmt.Errorf("transfer %s: missing chunk %d", t.ID, len(t.chunks))
	}
	out := make([]byte, 0, t.received)
	for _, chunk := range t.chunks {
		out = append(out, chunk...)
	}
	return out, nil
}
