// Package crypto implements the handshake key-wrap and the per-session
// authenticated symmetric cipher.
//
// Key-wrap uses RSA-2048 with OAEP/SHA-256 padding to wrap a freshly
// generated 256-bit session key. The symmetric cipher is AES-256-GCM with a
// random 96-bit nonce per encryption, which is acceptable nonce hygiene
// given the bound on messages exchanged over a single session's lifetime.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeySize is the required RSA modulus size for handshake key pairs.
const KeySize = 2048

// KeyPair is a generated RSA key pair used once per connection to wrap the
// session key the server hands back.
type KeyPair struct {
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit RSA key pair, the way the client
// does at the start of every handshake, including every reconnect attempt —
// a fresh keypair each time, never reused across connections.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate rsa keypair: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// PublicKeyPEM returns the PEM-encoded SubjectPublicKeyInfo for this key
// pair's public half, the form sent over the wire in a hello envelope.
func (kp *KeyPair) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&kp.Private.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM decodes a PEM-encoded public key sent by a peer and
// validates that it is an RSA-2048 key. A key of any other size or type is
// rejected with a handshake error.
func ParsePublicKeyPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("decode public key: not valid PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an RSA key")
	}
	if rsaPub.N.BitLen() != KeySize {
		return nil, fmt.Errorf("parse public key: %d-bit key, want %d-bit", rsaPub.N.BitLen(), KeySize)
	}
	return rsaPub, nil
}

// WrapKey encrypts sessionKey for pub using RSA-OAEP/SHA-256, so only the
// holder of the matching private key can recover it.
func WrapKey(pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}
	return ciphertext, nil
}

// UnwrapKey recovers a session key wrapped with WrapKey.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap session key: %w", err)
	}
	return plaintext, nil
}
