package server

import (
	"crypto/tls"
	"fmt"

	"github.com/cmdrelay/cmdrelay"
)

// LoadTLSConfig builds a server tls.Config from a certificate/key pair.
// Supplying exactly one of certFile/keyFile is a configuration error.
// Supplying neither disables TLS and returns a nil config with no error.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	switch {
	case certFile == "" && keyFile == "":
		return nil, nil
	case certFile == "" || keyFile == "":
		return nil, cmdrelay.NewError(cmdrelay.KindConfig, 0,
			fmt.Errorf("certfile and keyfile must both be set or both be empty"))
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, cmdrelay.NewError(cmdrelay.KindConfig, 0, fmt.Errorf("load tls key pair: %w", err))
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
