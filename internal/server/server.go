// Package server implements the server-side dispatcher: TLS/plaintext
// listener, handshake state machine, and the per-session reader/writer/
// heartbeat task trio.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/session"
)

// Server owns the listener, the session registry, and the metric set for
// one running relay instance.
type Server struct {
	cfg      *Config
	tlsCfg   *tls.Config
	registry *session.Registry
	metrics  *Metrics

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server from a resolved Config. It does not start listening.
func New(cfg *Config) (*Server, error) {
	tlsCfg, err := LoadTLSConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		tlsCfg:   tlsCfg,
		registry: session.NewRegistry(),
		metrics:  NewMetrics(),
	}, nil
}

// Metrics exposes the server's metric set, e.g. for wiring an HTTP exporter
// from cmd/server.
func (srv *Server) Metrics() *Metrics { return srv.metrics }

// Addr returns the listener's actual address once Run has started it, or
// the empty string before then. Useful for tests that bind to port 0.
func (srv *Server) Addr() string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Run listens and serves connections until ctx is cancelled, then drains all
// sessions and returns. It blocks for the lifetime of the server.
func (srv *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", srv.cfg.Host, srv.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if srv.tlsCfg != nil {
		ln = tls.NewListener(ln, srv.tlsCfg)
	}

	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	log.Printf("listening on %s (tls=%v)", addr, srv.tlsCfg != nil)

	if srv.cfg.MetricsInterval > 0 {
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.metrics.LogPeriodically(ctx, srv.cfg.MetricsInterval, srv.registry.Count)
		}()
	}

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- srv.acceptLoop(ln) }()

	select {
	case err := <-acceptErr:
		srv.drainAll()
		srv.wg.Wait()
		return err
	case <-ctx.Done():
		_ = ln.Close()
		srv.drainAll()
		srv.wg.Wait()
		return nil
	}
}

func (srv *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.handleConn(conn)
		}()
	}
}

func (srv *Server) handleConn(conn net.Conn) {
	id := srv.registry.NextID()
	s, err := performHandshake(conn, id, srv.cfg)
	if err != nil {
		log.Printf("session %d: handshake failed: %v", id, err)
		return
	}
	srv.runSession(s)
}

// drainAll closes the listener if still open, then terminates every
// connected session, giving each up to DrainTimeout to flush (enforced by
// the writer task itself).
func (srv *Server) drainAll() {
	srv.mu.Lock()
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
	srv.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range srv.registry.All() {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Terminate()
		}(s)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(DrainTimeout + time.Second):
	}
}
