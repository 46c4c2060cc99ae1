package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// SessionKeySize is the length in bytes of a generated AES-256 session key.
const SessionKeySize = 32

// NonceSize is the length in bytes of the random GCM nonce prefixed to
// every ciphertext.
const NonceSize = 12

// GenerateSessionKey returns a fresh 256-bit symmetric key. Callers own the
// returned slice and must zero it with Zeroize once the session ends.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// Zeroize overwrites key in place. Call it once a session's key is no
// longer needed, so it doesn't linger in memory past termination.
func Zeroize(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// SymmetricCipher wraps AES-256-GCM for a single session's key.
type SymmetricCipher struct {
	aead cipher.AEAD
}

// NewSymmetricCipher builds an AES-256-GCM AEAD over key. key must be
// SessionKeySize bytes.
func NewSymmetricCipher(key []byte) (*SymmetricCipher, error) {
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("symmetric cipher: key must be %d bytes, got %d", SessionKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("symmetric cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("symmetric cipher: %w", err)
	}
	return &SymmetricCipher{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext || tag for plaintext, with a freshly
// generated random nonce.
func (c *SymmetricCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encrypt: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// ErrDecrypt is returned whenever authenticated decryption fails — bad tag,
// truncated frame, or wrong key. The session must be terminated on any
// ErrDecrypt: decryption fails closed.
var ErrDecrypt = fmt.Errorf("crypto: decryption failed")

// Decrypt splits framed into nonce || ciphertext || tag and verifies +
// decrypts it. It fails closed: any error, including a bad tag, is reported
// as ErrDecrypt without leaking which step failed.
func (c *SymmetricCipher) Decrypt(framed []byte) ([]byte, error) {
	if len(framed) < NonceSize {
		return nil, ErrDecrypt
	}
	nonce, sealed := framed[:NonceSize], framed[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
