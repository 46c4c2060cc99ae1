// Package cmdrelay provides the server-side session and relay core for an
// encrypted, multi-room chat service.
//
// This package implements a framed, encrypted message protocol where the
// server terminates a handshake with each client (RSA-OAEP key wrap for a
// fresh AES-256-GCM session key), then relays structured envelopes between
// clients grouped into rooms. The server decrypts and re-encrypts every
// envelope per recipient — there is no end-to-end encryption between peers,
// and no message content is ever persisted.
//
// # Architecture
//
// Every connection is framed as a 4-byte big-endian length prefix followed
// by that many payload bytes (see internal/protocol). Before the handshake
// completes, the payload is a plaintext JSON envelope; afterwards it is
// nonce(12) || ciphertext || tag(16) for AES-256-GCM under a session key
// generated by the server and delivered to the client wrapped with the
// client's RSA public key.
//
// Each operational session runs three cooperating goroutines: a reader that
// decodes and dispatches incoming envelopes, a writer that drains the
// session's outbound queue, and a heartbeat task that pings the client and
// reaps it on timeout. internal/session.Registry tracks sessions and their
// room membership; internal/server.Server (runSession in dispatcher.go) owns
// the per-session goroutines and wires them to the registry.
//
// # Quick Start
//
//	import "github.com/cmdrelay/cmdrelay/internal/server"
//
//	srv, err := server.New(&server.Config{Host: "127.0.0.1", Port: 5050})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Security Features
//
//   - Rate limiting per session (token bucket, 12 events / 5s by default)
//   - Maximum frame payload: 64KiB; maximum file transfer: 10MiB
//   - Handshake timeout: 10s; heartbeat timeout: 45s
//   - Decryption failures are fatal to the session (fail closed)
//   - Raw session key buffers are zeroized once the session cipher is built,
//     and are never logged
package cmdrelay
