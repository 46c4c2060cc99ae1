package e2e_test

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
	"github.com/cmdrelay/cmdrelay/internal/server"
)

// startServer boots a real server.Server on an OS-assigned port and returns
// its address plus a func to shut it down.
func startServer(t *testing.T, cfg *server.Config) (addr string, stop func()) {
	t.Helper()

	if cfg == nil {
		cfg = &server.Config{Host: "127.0.0.1", Port: 0}
	}
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not start listening in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return srv.Addr(), func() {
		cancel()
		<-done
	}
}

// testPeer is a minimal, test-only client driven directly against the wire
// protocol — the same handshake any real client performs, kept deliberately
// separate from internal/clientside so these tests exercise only the
// public wire contract.
type testPeer struct {
	conn   net.Conn
	cipher *crypto.SymmetricCipher
	id     uint64
}

func connectPeer(t *testing.T, addr, name, room, token string) *testPeer {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("net.DialTimeout(%q) error = %v", addr, err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	pub, err := kp.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM() error = %v", err)
	}

	hello, err := protocol.Marshal(protocol.Envelope{
		Type:          protocol.TypeHello,
		PeerPublicKey: pub,
		Name:          name,
		Room:          room,
		Token:         token,
		Renderer:      "json",
		BufferSize:    100,
	})
	if err != nil {
		t.Fatalf("Marshal(hello) error = %v", err)
	}
	if err := protocol.WriteFrame(conn, hello); err != nil {
		t.Fatalf("WriteFrame(hello) error = %v", err)
	}

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame(session-init) error = %v", err)
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal(session-init) error = %v", err)
	}
	if env.Type != protocol.TypeSessionInit {
		t.Fatalf("handshake response type = %q, want %q (code=%s)", env.Type, protocol.TypeSessionInit, env.Code)
	}

	wrapped, err := base64.StdEncoding.DecodeString(env.WrappedKey)
	if err != nil {
		t.Fatalf("decode wrapped_key: %v", err)
	}
	sessionKey, err := crypto.UnwrapKey(kp.Private, wrapped)
	if err != nil {
		t.Fatalf("UnwrapKey() error = %v", err)
	}
	cipher, err := crypto.NewSymmetricCipher(sessionKey)
	crypto.Zeroize(sessionKey)
	if err != nil {
		t.Fatalf("NewSymmetricCipher() error = %v", err)
	}

	return &testPeer{conn: conn, cipher: cipher, id: env.ClientID}
}

func (p *testPeer) send(t *testing.T, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	framed, err := p.cipher.Encrypt(data)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if err := protocol.WriteFrame(p.conn, framed); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
}

func (p *testPeer) recv(t *testing.T) protocol.Envelope {
	t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := protocol.ReadFrame(p.conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	plaintext, err := p.cipher.Decrypt(frame)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	env, err := protocol.Unmarshal(plaintext)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return env
}

// recvUntil reads envelopes until one of the given types is seen (skipping
// any others, e.g. ping), or fails the test after maxReads attempts.
func (p *testPeer) recvUntil(t *testing.T, maxReads int, types ...protocol.Type) protocol.Envelope {
	t.Helper()
	want := make(map[protocol.Type]bool, len(types))
	for _, ty := range types {
		want[ty] = true
	}
	for i := 0; i < maxReads; i++ {
		env := p.recv(t)
		if want[env.Type] {
			return env
		}
	}
	t.Fatalf("did not see any of %v within %d reads", types, maxReads)
	return protocol.Envelope{}
}

func (p *testPeer) close() {
	p.conn.Close()
}

// dialRaw opens a plain connection for tests that need to drive the
// handshake's plaintext phase directly, e.g. to observe an auth rejection.
func dialRaw(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("net.DialTimeout(%q) error = %v", addr, err)
	}
	return conn
}

func helloWithoutToken(t *testing.T, conn net.Conn) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	pub, err := kp.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM() error = %v", err)
	}
	hello, err := protocol.Marshal(protocol.Envelope{
		Type: protocol.TypeHello, PeerPublicKey: pub, Name: "nobody", Room: "lobby",
	})
	if err != nil {
		t.Fatalf("Marshal(hello) error = %v", err)
	}
	if err := protocol.WriteFrame(conn, hello); err != nil {
		t.Fatalf("WriteFrame(hello) error = %v", err)
	}
}

func readRawEnvelope(t *testing.T, conn net.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	env, err := protocol.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return env
}
