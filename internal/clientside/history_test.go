package clientside

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

func TestHistoryRoundTripsWithSamePassphrase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.enc")

	h, err := OpenHistory(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	if err := h.Append(protocol.Envelope{Type: protocol.TypeChat, Room: "lobby", Sender: "alice", Text: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h2, err := OpenHistory(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("reopening with the same passphrase: OpenHistory() error = %v", err)
	}
	defer h2.Close()
	if err := h2.Append(protocol.Envelope{Type: protocol.TypeChat, Room: "lobby", Sender: "bob", Text: "yo"}); err != nil {
		t.Fatalf("Append() on reopened file: error = %v", err)
	}
}

func TestHistoryRejectsWrongPassphraseOnDecrypt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.enc")

	h, err := OpenHistory(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	if err := h.Append(protocol.Envelope{Type: protocol.TypeChat, Sender: "alice", Text: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	h.Close()

	h2, err := OpenHistory(path, "wrong passphrase")
	if err != nil {
		t.Fatalf("OpenHistory() with wrong passphrase should still open (salt is public): error = %v", err)
	}
	defer h2.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open() error = %v", err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(crypto.HistorySaltSize), 0); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	frame, err := protocol.ReadFrame(f)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if _, err := h2.cipher.Decrypt(frame); err == nil {
		t.Fatal("Decrypt() with wrong passphrase's key = nil error, want failure")
	}
}
