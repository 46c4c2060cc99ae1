// Command cmdrelay-server runs the relay's listener: it accepts
// connections, drives the handshake, and dispatches envelopes between
// sessions grouped into rooms until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/cmdrelay/cmdrelay/internal/server"
)

type cli struct {
	Host            string `help:"Listen address." default:"127.0.0.1" env:"CMDRELAY_HOST"`
	Port            int    `help:"Listen port." default:"5050" env:"CMDRELAY_PORT"`
	CertFile        string `help:"TLS certificate path. Requires --keyfile." env:"CMDRELAY_CERTFILE"`
	KeyFile         string `help:"TLS private key path. Requires --certfile." env:"CMDRELAY_KEYFILE"`
	MetricsInterval int    `help:"Seconds between metrics log lines; 0 disables." default:"0" env:"CMDRELAY_METRICS_INTERVAL"`
	LogLevel        string `help:"Log level label (debug, info, warn, error); stored in the server config, log output is not filtered by it." default:"info" env:"CMDCHAT_LOG_LEVEL"`
}

const (
	exitOK        = 0
	exitRuntime   = 1
	exitBadArgs   = 2
	exitTLSConfig = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var params cli
	parser, err := kong.New(&params, kong.Name("cmdrelay-server"),
		kong.Description("Encrypted multi-room chat relay server."))
	if err != nil {
		log.Printf("cli: %v", err)
		return exitBadArgs
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArgs
	}
	if (params.CertFile == "") != (params.KeyFile == "") {
		fmt.Fprintln(os.Stderr, "cmdrelay-server: --certfile and --keyfile must both be set or both be empty")
		return exitBadArgs
	}

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := &server.Config{
		Host:            params.Host,
		Port:            params.Port,
		CertFile:        params.CertFile,
		KeyFile:         params.KeyFile,
		MetricsInterval: time.Duration(params.MetricsInterval) * time.Second,
		LogLevel:        server.LogLevelFromEnv(params.LogLevel),
		Tokens:          server.TokensFromEnv(),
	}
	if !server.MetricsEnabledFromEnv() {
		cfg.MetricsInterval = 0
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Printf("config: %v", err)
		return exitTLSConfig
	}

	if cfg.MetricsInterval > 0 {
		metricsAddr := fmt.Sprintf("127.0.0.1:%d", params.Port+1)
		go func() {
			if err := srv.Metrics().Serve(context.Background(), metricsAddr); err != nil {
				log.Printf("metrics: %v", err)
			}
		}()
		log.Printf("metrics: exposing /metrics on %s", metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Printf("server: %v", err)
		return exitRuntime
	}
	return exitOK
}
