package server

import (
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/cmdrelay/cmdrelay"
	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
	"github.com/cmdrelay/cmdrelay/internal/session"
)

// HandshakeTimeout bounds how long the server waits for the first frame
// after accepting a connection.
const HandshakeTimeout = 10 * time.Second

// DefaultBufferSize and its bounds mirror the client CLI's --buffer-size
// range; the server replaces an out-of-range request with DefaultBufferSize
// and echoes the effective value back in session-init.
const (
	MinBufferSize     = 10
	MaxBufferSize     = 1000
	DefaultBufferSize = 100
)

var validRenderers = map[string]bool{"rich": true, "minimal": true, "json": true}

// performHandshake drives the AWAIT_HELLO -> OPERATIONAL state machine for
// one freshly accepted connection. On success it returns an
// OPERATIONAL session inserted into nothing yet — insertion into the
// registry and room, and the join broadcast, are the caller's job so the
// registry lock is never held here. On failure it has already written any
// required error envelope and closed conn.
func performHandshake(conn net.Conn, id uint64, cfg *Config) (*session.Session, error) {
	if err := conn.SetReadDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindTimeout, id, err)
	}

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}

	env, err := protocol.Unmarshal(frame)
	if err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}
	if env.Type != protocol.TypeHello {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id,
			fmt.Errorf("handshake: expected hello, got %q", env.Type))
	}

	if cfg.AuthRequired() && !cfg.AcceptsToken(env.Token) {
		writePlainError(conn, cmdrelay.ErrCodeAuth)
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindAuth, id, fmt.Errorf("handshake: token rejected"))
	}

	peerPub, err := crypto.ParsePublicKeyPEM(env.PeerPublicKey)
	if err != nil {
		writePlainError(conn, cmdrelay.ErrCodeHandshake)
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, fmt.Errorf("handshake: %w", err))
	}

	name := SanitizeName(env.Name)
	room := SanitizeRoom(env.Room)
	renderer := env.Renderer
	if !validRenderers[renderer] {
		renderer = "rich"
	}
	bufferSize := env.BufferSize
	if bufferSize < MinBufferSize || bufferSize > MaxBufferSize {
		bufferSize = DefaultBufferSize
	}

	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		writePlainError(conn, cmdrelay.ErrCodeInternal)
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}

	wrapped, err := crypto.WrapKey(peerPub, sessionKey)
	if err != nil {
		crypto.Zeroize(sessionKey)
		writePlainError(conn, cmdrelay.ErrCodeHandshake)
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}

	cipher, err := crypto.NewSymmetricCipher(sessionKey)
	if err != nil {
		crypto.Zeroize(sessionKey)
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}
	crypto.Zeroize(sessionKey)

	init := protocol.Envelope{
		Type:              protocol.TypeSessionInit,
		WrappedKey:        base64.StdEncoding.EncodeToString(wrapped),
		ClientID:          id,
		ServerTime:        time.Now().UnixMilli(),
		HeartbeatInterval: HeartbeatInterval.Seconds(),
		Renderer:          renderer,
		BufferSize:        bufferSize,
	}
	data, err := protocol.Marshal(init)
	if err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, id, err)
	}
	if err := protocol.WriteFrame(conn, data); err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindIO, id, err)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, cmdrelay.NewError(cmdrelay.KindIO, id, err)
	}

	s := session.New(id, conn, cipher, name, room)
	s.Renderer = renderer
	s.BufferSize = bufferSize
	return s, nil
}

// writePlainError best-effort writes a plaintext error envelope before the
// connection is torn down. Errors writing it are ignored: the connection is
// closing either way.
func writePlainError(conn net.Conn, code string) {
	data, err := protocol.Marshal(protocol.Envelope{Type: protocol.TypeError, Code: code})
	if err != nil {
		return
	}
	_ = protocol.WriteFrame(conn, data)
}
