package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmdrelay/cmdrelay"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
	"github.com/cmdrelay/cmdrelay/internal/session"
)

// Heartbeat timing for the ping/pong watchdog.
const (
	HeartbeatInterval = 15 * time.Second
	HeartbeatTimeout  = 45 * time.Second

	// DrainTimeout bounds how long the writer keeps flushing its queue after
	// cancellation before the stream is forcibly closed.
	DrainTimeout = 2 * time.Second

	// ChunkSize is the expected size of a file-chunk payload before
	// base64 encoding.
	ChunkSize = 32 * 1024
)

// errQuit signals a clean, client-initiated disconnect (cmd-quit). It
// unwinds the session's task group the same way any other error would, but
// is never logged as a failure.
var errQuit = errors.New("session: client requested quit")

// runSession drives one OPERATIONAL session end to end: room join, the
// reader/writer/heartbeat task trio (coordinated with errgroup the way
// xray-core's pipe stages do), and teardown. It returns once the session
// has fully terminated.
func (srv *Server) runSession(s *session.Session) {
	srv.registry.Add(s)
	srv.metrics.ConnectedSessions.Inc()
	srv.registry.Broadcast(s.Room(), protocol.Envelope{
		Type: protocol.TypeSystem,
		Text: s.Name() + " joined",
	}, s.ID)

	group, ctx := errgroup.WithContext(s.Context())
	group.Go(func() error { return srv.readerTask(ctx, s) })
	group.Go(func() error { return srv.writerTask(ctx, s) })
	group.Go(func() error { return srv.heartbeatTask(ctx, s) })

	if err := group.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		log.Printf("session %d: terminated: %v", s.ID, err)
	}

	s.Terminate()
	s.CloseTransfers()
	srv.registry.Remove(s.ID)
	srv.metrics.ConnectedSessions.Dec()
	srv.registry.Broadcast(s.Room(), protocol.Envelope{
		Type: protocol.TypeSystem,
		Text: s.Name() + " left",
	}, s.ID)
}

// readerTask reads and decrypts frames and dispatches each envelope. Any
// protocol, decrypt, or transfer violation is fatal; rate-limit rejections
// are not.
func (srv *Server) readerTask(ctx context.Context, s *session.Session) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := protocol.ReadFrame(s.Conn)
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindProtocol, s.ID, err)
		}

		plaintext, err := s.Cipher.Decrypt(frame)
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindDecrypt, s.ID, err)
		}

		env, err := protocol.Unmarshal(plaintext)
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindProtocol, s.ID, err)
		}

		if err := srv.dispatch(s, env); err != nil {
			if errors.Is(err, errQuit) {
				return errQuit
			}
			return err
		}
	}
}

// dispatch routes one decrypted envelope by type.
func (srv *Server) dispatch(s *session.Session, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeChat:
		return srv.handleChat(s, env)
	case protocol.TypeCmdNick:
		return srv.handleNick(s, env)
	case protocol.TypeCmdJoin:
		return srv.handleJoin(s, env)
	case protocol.TypeCmdQuit:
		return errQuit
	case protocol.TypeFileStart:
		return srv.handleFileStart(s, env)
	case protocol.TypeFileChunk:
		return srv.handleFileChunk(s, env)
	case protocol.TypePing:
		return srv.handlePing(s, env)
	case protocol.TypePong:
		s.Touch()
		return nil
	default:
		log.Printf("session %d: ignoring unknown envelope type %q", s.ID, env.Type)
		return nil
	}
}

func (srv *Server) handleChat(s *session.Session, env protocol.Envelope) error {
	text, ok := SanitizeChatText(env.Text)
	if !ok {
		return cmdrelay.NewError(cmdrelay.KindProtocol, s.ID, fmt.Errorf("chat: invalid utf-8"))
	}
	if !s.Rate.Allow() {
		srv.metrics.RateLimitRejections.Inc()
		s.Enqueue(protocol.Envelope{Type: protocol.TypeError, Code: cmdrelay.ErrCodeRate})
		return nil
	}

	room := s.Room()
	out := protocol.Envelope{
		Type:   protocol.TypeChat,
		Sender: s.Name(),
		Room:   room,
		Text:   text,
		Ts:     time.Now().UnixMilli(),
		Seq:    srv.registry.NextSeq(room),
	}
	srv.metrics.MessagesRelayed.Inc()
	srv.metrics.BytesRelayed.Add(float64(len(text)))
	// Broadcasts to every member including the sender: id 0 is never
	// assigned to a real session, so passing it as skip means "skip no one".
	srv.registry.Broadcast(room, out, 0)
	return nil
}

func (srv *Server) handleNick(s *session.Session, env protocol.Envelope) error {
	old := s.Name()
	next := SanitizeName(env.Name)
	s.SetName(next)
	srv.registry.Broadcast(s.Room(), protocol.Envelope{
		Type: protocol.TypeSystem,
		Text: fmt.Sprintf("%s is now %s", old, next),
	}, 0)
	return nil
}

func (srv *Server) handleJoin(s *session.Session, env protocol.Envelope) error {
	newRoom := SanitizeRoom(env.Room)
	oldRoom := s.Room()
	if newRoom == oldRoom {
		return nil
	}

	srv.registry.Broadcast(oldRoom, protocol.Envelope{
		Type: protocol.TypeSystem,
		Text: s.Name() + " left",
	}, s.ID)

	if err := srv.registry.MoveRoom(s.ID, newRoom); err != nil {
		return cmdrelay.NewError(cmdrelay.KindProtocol, s.ID, err)
	}

	srv.registry.Broadcast(newRoom, protocol.Envelope{
		Type: protocol.TypeSystem,
		Text: s.Name() + " joined",
	}, s.ID)
	return nil
}

func (srv *Server) handleFileStart(s *session.Session, env protocol.Envelope) error {
	tr, err := session.NewTransfer(env.TransferID, s.ID, env.Filename, env.Size, env.TotalChunks)
	if err != nil {
		return cmdrelay.NewError(cmdrelay.KindTransfer, s.ID, err)
	}
	s.Transfers[env.TransferID] = tr

	srv.registry.Broadcast(s.Room(), protocol.Envelope{
		Type:        protocol.TypeFileStart,
		Sender:      s.Name(),
		TransferID:  env.TransferID,
		Filename:    env.Filename,
		Size:        env.Size,
		TotalChunks: env.TotalChunks,
	}, s.ID)
	return nil
}

func (srv *Server) handleFileChunk(s *session.Session, env protocol.Envelope) error {
	tr, ok := s.Transfers[env.TransferID]
	if !ok {
		return cmdrelay.NewError(cmdrelay.KindTransfer, s.ID, fmt.Errorf("file-chunk: unknown transfer %q", env.TransferID))
	}

	// File chunks are not subject to the chat rate limiter: a transfer is
	// already bounded by MaxTransferSize and its strict in-order delivery,
	// and admitting chunks out of pace with the budget would otherwise open
	// index gaps that AddChunk then treats as a fatal protocol violation.
	data, err := base64.StdEncoding.DecodeString(env.DataB64)
	if err != nil {
		return cmdrelay.NewError(cmdrelay.KindTransfer, s.ID, fmt.Errorf("file-chunk: bad base64: %w", err))
	}
	if err := tr.AddChunk(env.Index, data); err != nil {
		return cmdrelay.NewError(cmdrelay.KindTransfer, s.ID, err)
	}

	srv.metrics.MessagesRelayed.Inc()
	srv.metrics.BytesRelayed.Add(float64(len(data)))
	srv.registry.Broadcast(s.Room(), protocol.Envelope{
		Type:       protocol.TypeFileChunk,
		Sender:     s.Name(),
		TransferID: env.TransferID,
		Index:      env.Index,
		DataB64:    env.DataB64,
	}, s.ID)

	if env.Index == tr.TotalChunks-1 {
		assembled, err := tr.Assemble()
		if err != nil {
			return cmdrelay.NewError(cmdrelay.KindTransfer, s.ID, err)
		}
		sum := sha256.Sum256(assembled)
		delete(s.Transfers, env.TransferID)
		srv.registry.Broadcast(s.Room(), protocol.Envelope{
			Type:       protocol.TypeFileEnd,
			Sender:     s.Name(),
			TransferID: env.TransferID,
			Sha256:     base64.StdEncoding.EncodeToString(sum[:]),
		}, s.ID)
	}
	return nil
}

func (srv *Server) handlePing(s *session.Session, env protocol.Envelope) error {
	s.Enqueue(protocol.Envelope{Type: protocol.TypePong, Nonce: env.Nonce})
	return nil
}

// writerTask pulls envelopes off the session's queue, encrypts, and writes
// frames. On cancellation it drains whatever is already queued for up to
// DrainTimeout before giving up.
func (srv *Server) writerTask(ctx context.Context, s *session.Session) error {
	for {
		select {
		case env := <-s.SendQueue:
			if err := writeEnvelope(s, env); err != nil {
				return cmdrelay.NewError(cmdrelay.KindIO, s.ID, err)
			}
		case <-ctx.Done():
			return srv.drainWriter(s)
		}
	}
}

func (srv *Server) drainWriter(s *session.Session) error {
	deadline := time.After(DrainTimeout)
	for {
		select {
		case env := <-s.SendQueue:
			_ = writeEnvelope(s, env)
		case <-deadline:
			return nil
		default:
			return nil
		}
	}
}

func writeEnvelope(s *session.Session, env protocol.Envelope) error {
	data, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	framed, err := s.Cipher.Encrypt(data)
	if err != nil {
		return err
	}
	s.NextSeqOut()
	return protocol.WriteFrame(s.Conn, framed)
}

// heartbeatTask periodically pings the client and terminates the session if
// no pong has arrived within HeartbeatTimeout.
func (srv *Server) heartbeatTask(ctx context.Context, s *session.Session) error {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.Idle() > HeartbeatTimeout {
				// Close the stream so the reader task, blocked in ReadFrame,
				// returns and the session can be torn down.
				s.Terminate()
				return cmdrelay.NewError(cmdrelay.KindTimeout, s.ID, fmt.Errorf("heartbeat: no pong in %s", HeartbeatTimeout))
			}
			s.Enqueue(protocol.Envelope{Type: protocol.TypePing, Nonce: randomNonce()})
		}
	}
}

func randomNonce() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return base64.StdEncoding.EncodeToString(buf[:])
}
