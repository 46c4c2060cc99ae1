package clientside

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// historyRecord is one persisted chat line: enough to reconstruct a
// transcript without storing the raw envelope or any session key material.
type historyRecord struct {
	Timestamp int64  `json:"timestamp"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

// History appends encrypted chat records to a local file. Each record is
// framed the same way the wire protocol frames envelopes — a 4-byte
// length prefix followed by nonce || ciphertext || tag — so the file is a
// flat sequence of self-delimiting encrypted blobs rather than a single
// opaque stream cipher.
type History struct {
	file   *os.File
	cipher *crypto.SymmetricCipher
}

// OpenHistory opens (creating if necessary) path for append, deriving its
// key from passphrase. A fresh random salt is generated and written as the
// file's first record's worth of header bytes on creation; an existing
// file's salt is read back so reopening with the same passphrase yields the
// same key.
func OpenHistory(path, passphrase string) (*History, error) {
	salt, isNew, err := loadOrCreateSalt(path)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveHistoryKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewSymmetricCipher(key)
	crypto.Zeroize(key)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDWR | os.O_APPEND
	if isNew {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open history file %s: %w", path, err)
	}
	return &History{file: f, cipher: cipher}, nil
}

// loadOrCreateSalt reads the salt header from an existing history file, or
// generates and writes a fresh one for a new file.
func loadOrCreateSalt(path string) ([]byte, bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && len(existing) >= crypto.HistorySaltSize:
		return existing[:crypto.HistorySaltSize], false, nil
	case err == nil:
		return nil, false, fmt.Errorf("history file %s: truncated salt header", path)
	case !os.IsNotExist(err):
		return nil, false, fmt.Errorf("read history file %s: %w", path, err)
	}

	salt, err := crypto.GenerateHistorySalt()
	if err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, false, fmt.Errorf("write history salt: %w", err)
	}
	return salt, true, nil
}

// Append encrypts and appends one chat envelope to the history file. Only
// chat envelopes are persisted; the caller filters before calling.
func (h *History) Append(env protocol.Envelope) error {
	rec := historyRecord{
		Timestamp: time.Now().UnixMilli(),
		Room:      env.Room,
		Sender:    env.Sender,
		Text:      env.Text,
	}
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	framed, err := h.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt history record: %w", err)
	}
	if err := protocol.WriteFrame(h.file, framed); err != nil {
		return fmt.Errorf("write history record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (h *History) Close() error {
	return h.file.Close()
}
