// Command cmdrelay-client connects to a relay server, sends hello, and
// runs an interactive terminal session: typed lines become chat messages
// or slash commands, and incoming envelopes are rendered to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cmdrelay/cmdrelay/internal/clientside"
	"github.com/cmdrelay/cmdrelay/internal/server"
)

type cli struct {
	Host string `help:"Server address." default:"127.0.0.1"`
	Port int    `help:"Server port." default:"5050"`

	Name  string `help:"Display name." default:""`
	Room  string `help:"Room to join." default:"lobby"`
	Token string `help:"Auth token, if the server requires one." default:""`

	Renderer   string `help:"Output style: rich, minimal, or json." enum:"rich,minimal,json" default:"rich"`
	BufferSize int    `help:"Outbound queue size, 10-1000." default:"100"`

	TLS         bool   `help:"Connect over TLS."`
	TLSInsecure bool   `help:"Skip TLS certificate verification." name:"tls-insecure"`
	CAFile      string `help:"CA certificate to verify the server against." name:"ca-file"`

	HistoryFile       string `help:"Append encrypted chat history to this file." name:"history-file"`
	HistoryPassphrase string `help:"Passphrase for --history-file." name:"history-passphrase"`

	QuietReconnect bool `help:"Suppress status output during reconnect backoff." name:"quiet-reconnect"`
}

const (
	exitOK      = 0
	exitRuntime = 1
	exitBadArgs = 2
	exitConfig  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var params cli
	parser, err := kong.New(&params, kong.Name("cmdrelay-client"),
		kong.Description("Interactive terminal client for the encrypted chat relay."))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArgs
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArgs
	}
	if params.BufferSize < server.MinBufferSize || params.BufferSize > server.MaxBufferSize {
		fmt.Fprintf(os.Stderr, "cmdrelay-client: --buffer-size must be %d-%d\n", server.MinBufferSize, server.MaxBufferSize)
		return exitBadArgs
	}
	if (params.HistoryFile == "") != (params.HistoryPassphrase == "") {
		fmt.Fprintln(os.Stderr, "cmdrelay-client: --history-file and --history-passphrase must both be set or both be empty")
		return exitBadArgs
	}

	cfg := &clientside.Config{
		Host:              params.Host,
		Port:              params.Port,
		Name:              params.Name,
		Room:              params.Room,
		Token:             params.Token,
		Renderer:          params.Renderer,
		BufferSize:        params.BufferSize,
		TLS:               params.TLS,
		TLSInsecure:       params.TLSInsecure,
		CAFile:            params.CAFile,
		HistoryFile:       params.HistoryFile,
		HistoryPassphrase: params.HistoryPassphrase,
		QuietReconnect:    params.QuietReconnect,
	}

	loop, err := clientside.NewLoop(cfg, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer loop.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntime
	}
	return exitOK
}
