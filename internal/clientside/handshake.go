package clientside

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/cmdrelay/cmdrelay"
	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// HandshakeTimeout bounds how long the client waits for session-init after
// sending hello.
const HandshakeTimeout = 10 * time.Second

// handshakeResult carries everything a completed handshake hands back to
// the loop: the live connection, the negotiated cipher, and the server's
// echoed renderer/buffer-size choice.
type handshakeResult struct {
	conn       net.Conn
	cipher     *crypto.SymmetricCipher
	clientID   uint64
	renderer   string
	bufferSize int
}

// dial opens the transport — plain TCP, or TLS per cfg — and drives the
// handshake: generate a fresh keypair, send hello, receive session-init,
// unwrap the session key.
func dial(cfg *Config) (*handshakeResult, error) {
	conn, err := net.DialTimeout("tcp", cfg.Addr(), HandshakeTimeout)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindIO, 0, fmt.Errorf("dial %s: %w", cfg.Addr(), err))
	}

	if cfg.TLS {
		tlsConn, err := wrapTLS(conn, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	result, err := performHandshake(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return result, nil
}

func wrapTLS(conn net.Conn, cfg *Config) (net.Conn, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLSInsecure,
		ServerName:         cfg.Host,
	}
	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, cmdrelay.NewError(cmdrelay.KindConfig, 0, err)
		}
		tlsCfg.RootCAs = pool
	}
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindIO, 0, err)
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindTimeout, 0, fmt.Errorf("tls handshake: %w", err))
	}
	return tlsConn, nil
}

func performHandshake(conn net.Conn, cfg *Config) (*handshakeResult, error) {
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindIO, 0, err)
	}

	keypair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}
	pubPEM, err := keypair.PublicKeyPEM()
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}

	hello := protocol.Envelope{
		Type:          protocol.TypeHello,
		PeerPublicKey: pubPEM,
		Name:          cfg.Name,
		Room:          cfg.Room,
		Token:         cfg.Token,
		Renderer:      cfg.Renderer,
		BufferSize:    cfg.BufferSize,
	}
	data, err := protocol.Marshal(hello)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}
	if err := protocol.WriteFrame(conn, data); err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindIO, 0, err)
	}

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}
	if env.Type == protocol.TypeError {
		return nil, cmdrelay.NewError(cmdrelay.KindAuth, 0, fmt.Errorf("handshake rejected: %s", env.Code))
	}
	if env.Type != protocol.TypeSessionInit {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0,
			fmt.Errorf("handshake: expected session-init, got %q", env.Type))
	}

	wrapped, err := base64.StdEncoding.DecodeString(env.WrappedKey)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, fmt.Errorf("handshake: bad wrapped key: %w", err))
	}
	sessionKey, err := crypto.UnwrapKey(keypair.Private, wrapped)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, fmt.Errorf("handshake: %w", err))
	}
	cipher, err := crypto.NewSymmetricCipher(sessionKey)
	if err != nil {
		crypto.Zeroize(sessionKey)
		return nil, cmdrelay.NewError(cmdrelay.KindProtocol, 0, err)
	}
	crypto.Zeroize(sessionKey)

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindIO, 0, err)
	}

	return &handshakeResult{
		conn:       conn,
		cipher:     cipher,
		clientID:   env.ClientID,
		renderer:   env.Renderer,
		bufferSize: env.BufferSize,
	}, nil
}
