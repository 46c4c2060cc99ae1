package clientside

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmdrelay/cmdrelay"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// ErrQuit is returned from Run when the user issued /quit.
var ErrQuit = errors.New("clientside: user requested quit")

// Loop owns one client's full lifecycle: connect, run the send/receive
// pair until the stream fails or the user quits, then reconnect with
// backoff unless the failure was a clean /quit.
type Loop struct {
	cfg      *Config
	renderer Renderer
	history  *History
	input    io.Reader
	out      io.Writer
}

// NewLoop builds a Loop reading commands from in and rendering to out.
func NewLoop(cfg *Config, in io.Reader, out io.Writer) (*Loop, error) {
	l := &Loop{
		cfg:      cfg,
		renderer: NewRenderer(cfg.Renderer, out),
		input:    in,
		out:      out,
	}
	if cfg.HistoryFile != "" {
		h, err := OpenHistory(cfg.HistoryFile, cfg.HistoryPassphrase)
		if err != nil {
			return nil, err
		}
		l.history = h
	}
	return l, nil
}

// Close releases the history file, if one is open.
func (l *Loop) Close() error {
	if l.history == nil {
		return nil
	}
	return l.history.Close()
}

// Run connects and services the session until ctx is cancelled or the user
// issues /quit, reconnecting with backoff on any other stream failure.
func (l *Loop) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.runOnce(ctx)
		if err == nil || errors.Is(err, ErrQuit) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := backoffDelay(attempt)
		if !l.cfg.QuietReconnect {
			fmt.Fprintf(l.out, "* connection lost (%v); reconnecting in %s\n", err, wait.Round(time.Millisecond))
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
		attempt++
	}
}

// runOnce performs one handshake and services the connection until it
// fails or the user quits.
func (l *Loop) runOnce(ctx context.Context) error {
	hs, err := dial(l.cfg)
	if err != nil {
		return err
	}
	defer hs.conn.Close()

	if !l.cfg.QuietReconnect {
		fmt.Fprintf(l.out, "* connected as client %d (room %s)\n", hs.clientID, l.cfg.Room)
	}

	sendCh := make(chan protocol.Envelope, l.cfg.BufferSize)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return l.receiveTask(gctx, hs, sendCh) })
	group.Go(func() error { return l.inputTask(gctx, sendCh) })
	group.Go(func() error { return l.sendTask(gctx, hs, sendCh) })

	err = group.Wait()
	if errors.Is(err, ErrQuit) {
		return ErrQuit
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// receiveTask reads and decrypts frames and passes them to the renderer
// and, for chat envelopes, the history file.
func (l *Loop) receiveTask(ctx context.Context, hs *handshakeResult, sendCh chan protocol.Envelope) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := protocol.ReadFrame(hs.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return cmdrelay.NewError(cmdrelay.KindIO, hs.clientID, fmt.Errorf("server closed the connection"))
			}
			return cmdrelay.NewError(cmdrelay.KindProtocol, hs.clientID, err)
		}
		plaintext, err := hs.cipher.Decrypt(frame)
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindDecrypt, hs.clientID, err)
		}
		env, err := protocol.Unmarshal(plaintext)
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindProtocol, hs.clientID, err)
		}

		if env.Type == protocol.TypePing {
			select {
			case sendCh <- protocol.Envelope{Type: protocol.TypePong, Nonce: env.Nonce}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		l.renderer.Render(env)
		if env.Type == protocol.TypeChat && l.history != nil {
			if err := l.history.Append(env); err != nil {
				log.Printf("history: %v", err)
			}
		}
	}
}

// inputTask reads lines from the terminal and turns them into envelopes or
// local actions (file sends, /clear, /help, /quit).
func (l *Loop) inputTask(ctx context.Context, sendCh chan protocol.Envelope) error {
	scanner := bufio.NewScanner(l.input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		action := ParseLine(scanner.Text())
		switch action.Kind {
		case ActionNone:
			continue
		case ActionHelp:
			fmt.Fprintln(l.out, HelpText)
			continue
		case ActionClear:
			fmt.Fprint(l.out, "\033[2J\033[H")
			continue
		case ActionSendFile:
			envelopes, err := buildFileEnvelopes(action.Path)
			if err != nil {
				fmt.Fprintf(l.out, "! %v\n", err)
				continue
			}
			for _, env := range envelopes {
				select {
				case sendCh <- env:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		case ActionQuit:
			select {
			case sendCh <- action.Envelope:
			case <-ctx.Done():
			}
			return ErrQuit
		case ActionEnvelope:
			select {
			case sendCh <- action.Envelope:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return cmdrelay.NewError(cmdrelay.KindIO, 0, err)
	}
	// Input stream closed without /quit (e.g. piped input exhausted): leave
	// the receive/send tasks running rather than treating this as a failure.
	<-ctx.Done()
	return ctx.Err()
}

// sendTask drains sendCh, encrypts, and writes frames — the one writer for
// this connection, keeping outbound frames totally ordered.
func (l *Loop) sendTask(ctx context.Context, hs *handshakeResult, sendCh chan protocol.Envelope) error {
	for {
		select {
		case env := <-sendCh:
			data, err := protocol.Marshal(env)
			if err != nil {
				return cmdrelay.NewError(cmdrelay.KindProtocol, hs.clientID, err)
			}
			framed, err := hs.cipher.Encrypt(data)
			if err != nil {
				return cmdrelay.NewError(cmdrelay.KindProtocol, hs.clientID, err)
			}
			if err := protocol.WriteFrame(hs.conn, framed); err != nil {
				return cmdrelay.NewError(cmdrelay.KindIO, hs.clientID, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoffDelay returns the reconnect wait for the given attempt (0-based),
// stepping through ReconnectBackoffSteps and applying ±20% jitter.
func backoffDelay(attempt int) time.Duration {
	steps := ReconnectBackoffSteps
	if attempt >= len(steps) {
		attempt = len(steps) - 1
	}
	base := steps[attempt]
	jitter := float64(base) * (rand.Float64()*0.4 - 0.2)
	return base + time.Duration(jitter)
}
