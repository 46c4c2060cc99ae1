package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// History key derivation parameters for the client's encrypted history
// file: PBKDF2-HMAC-SHA256 with a high iteration count.
const (
	HistorySaltSize  = 16
	historyPBKDF2Iter = 200_000
)

// GenerateHistorySalt returns a fresh random salt for a new history file.
func GenerateHistorySalt() ([]byte, error) {
	salt := make([]byte, HistorySaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate history salt: %w", err)
	}
	return salt, nil
}

// DeriveHistoryKey stretches a user-supplied passphrase into a 256-bit AES
// key using PBKDF2-HMAC-SHA256, so the client's on-disk history file is
// encrypted at rest without the passphrase ever touching AES directly.
func DeriveHistoryKey(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) < 8 {
		return nil, fmt.Errorf("derive history key: salt must be at least 8 bytes")
	}
	return pbkdf2.Key([]byte(passphrase), salt, historyPBKDF2Iter, SessionKeySize, sha256.New), nil
}
