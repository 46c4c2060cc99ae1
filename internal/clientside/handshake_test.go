package clientside

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/server"
)

func splitHost(addr string) string {
	host, _, _ := net.SplitHostPort(addr)
	return host
}

func splitPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("net.SplitHostPort(%q) error = %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("strconv.Atoi(%q) error = %v", portStr, err)
	}
	return port
}

func startTestServer(t *testing.T, cfg *server.Config) (addr string, stop func()) {
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

func TestDialSucceedsAgainstRealServer(t *testing.T) {
	t.Parallel()

	addr, stop := startTestServer(t, nil)
	defer stop()

	cfg := &Config{Host: splitHost(addr), Port: splitPort(t, addr), Name: "alice", Room: "lobby", Renderer: "rich", BufferSize: 100}
	hs, err := dial(cfg)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	defer hs.conn.Close()

	if hs.clientID == 0 {
		t.Error("clientID = 0, want a server-assigned nonzero id")
	}
	if hs.renderer != "rich" {
		t.Errorf("renderer = %q, want %q", hs.renderer, "rich")
	}
}

func TestDialRejectsMissingToken(t *testing.T) {
	t.Parallel()

	addr, stop := startTestServer(t, &server.Config{Host: "127.0.0.1", Port: 0, Tokens: map[string]bool{"secret": true}})
	defer stop()

	cfg := &Config{Host: splitHost(addr), Port: splitPort(t, addr), Name: "alice", Room: "lobby", Renderer: "rich", BufferSize: 100}
	if _, err := dial(cfg); err == nil {
		t.Fatal("dial() error = nil, want auth rejection")
	}
}
