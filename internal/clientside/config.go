// Package clientside implements the client half of the relay: handshake,
// the send/receive/reconnect loop, slash commands, renderers, and the
// optional encrypted history file.
package clientside

import (
	"net"
	"strconv"
	"time"
)

// Config holds a fully-resolved client configuration, after CLI flags
// (parsed by cmd/client with kong) are merged.
type Config struct {
	Host string
	Port int

	Name  string
	Room  string
	Token string

	Renderer   string
	BufferSize int

	TLS         bool
	TLSInsecure bool
	CAFile      string

	HistoryFile       string
	HistoryPassphrase string

	QuietReconnect bool
}

// Addr returns the host:port dial target.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReconnectBackoffSteps is the backoff schedule on stream errors: doubling from
// 1s, capped at 30s, with jitter applied by the caller.
var ReconnectBackoffSteps = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}
