// Package session implements the server-side session and room registry:
// per-client state, concurrent-safe membership tracking, and the broadcast
// snapshot discipline that keeps registry locks off the I/O path.
package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/crypto"
	"github.com/cmdrelay/cmdrelay/internal/protocol"
	"github.com/cmdrelay/cmdrelay/internal/ratelimit"
)

// SendQueueSize is the bound on a session's outbound envelope queue,
// drained by the writer task.
const SendQueueSize = 256

// Session is one connected client's server-side state, from handshake
// completion to termination.
//
// Name, Room and the heartbeat timestamp are mutated by this session's own
// reader task but read by other sessions' reader tasks while broadcasting,
// so they're guarded by mu. The rate limiter and transfer map are touched
// only by this session's own reader task and need no locking. SendQueue is
// the one field the writer task is allowed to touch directly — it's a
// channel, safe by construction.
type Session struct {
	ID     uint64
	Conn   net.Conn
	Cipher *crypto.SymmetricCipher

	Renderer   string
	BufferSize int

	SendQueue chan protocol.Envelope
	Rate      *ratelimit.Limiter
	Transfers map[string]*Transfer

	mu       sync.Mutex
	name     string
	room     string
	lastPong time.Time

	seqOut uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Session ready for registry insertion. The caller supplies
// conn and cipher from a completed handshake.
func New(id uint64, conn net.Conn, cipher *crypto.SymmetricCipher, name, room string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		Conn:      conn,
		Cipher:    cipher,
		SendQueue: make(chan protocol.Envelope, SendQueueSize),
		Rate:      ratelimit.New(),
		Transfers: make(map[string]*Transfer),
		name:      name,
		room:      room,
		lastPong:  time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is cancelled when the session is terminated; reader, writer and
// heartbeat tasks all select on it.
func (s *Session) Context() context.Context { return s.ctx }

// Terminate cancels the session's context and closes its stream. Safe to
// call more than once. The raw session key buffer was already zeroized
// during the handshake, once the cipher was built; Terminate does not touch
// the cipher.
func (s *Session) Terminate() {
	s.cancel()
	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}

// Name returns the session's current display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName updates the display name. Only the session's own reader task
// calls this.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// Room returns the session's current room id.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// setRoom updates the room id. Exported only to the registry, which is the
// single place responsible for keeping Session.room and the room index in
// sync (see Registry.MoveRoom).
func (s *Session) setRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// Touch records a heartbeat response or handshake completion.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPong = time.Now()
}

// Idle reports how long it has been since the last pong or handshake.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPong)
}

// NextSeqOut returns the next value of this session's outbound sequence
// counter. The writer advances it once per frame written; the value is not
// put on the wire.
func (s *Session) NextSeqOut() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqOut++
	return s.seqOut
}

// Enqueue pushes an envelope onto the session's outbound queue without
// blocking. If the queue is full, it drops the oldest non-system envelopes
// to make room for a backpressure notice and e; if no room can be made that
// way, the session is terminated and Enqueue reports false.
func (s *Session) Enqueue(e protocol.Envelope) bool {
	select {
	case s.SendQueue <- e:
		return true
	default:
	}

	if s.dropOldestNonSystem() {
		select {
		case s.SendQueue <- e:
			return true
		default:
		}
	}

	s.Terminate()
	return false
}

// dropOldestNonSystem removes non-system envelopes from the head of the
// queue until two slots are free, then enqueues a backpressure system
// notice into one of them. Reports whether a slot is left for the caller.
func (s *Session) dropOldestNonSystem() bool {
	for i := 0; i < cap(s.SendQueue) && cap(s.SendQueue)-len(s.SendQueue) < 2; i++ {
		select {
		case dropped := <-s.SendQueue:
			if dropped.Type == protocol.TypeSystem {
				// Put system envelopes back; they're never the ones sacrificed.
				select {
				case s.SendQueue <- dropped:
				default:
					return false
				}
			}
		default:
		}
	}
	if cap(s.SendQueue)-len(s.SendQueue) < 2 {
		return false
	}
	select {
	case s.SendQueue <- protocol.Envelope{Type: protocol.TypeSystem, Text: "backpressure"}:
		return true
	default:
		return false
	}
}

// CloseTransfers discards all in-progress inbound file reassembly for this
// session, releasing their accumulators. Called on termination.
func (s *Session) CloseTransfers() {
	for id := range s.Transfers {
		delete(s.Transfers, id)
	}
}
