package protocol

import (
	"encoding/json"
	"fmt"
)

// Type is the discriminant tag on every envelope. The set is closed: a
// decoder that sees a Type it doesn't recognize must ignore the envelope
// after logging, never guess at its shape.
type Type string

// The exhaustive set of envelope types.
const (
	TypeHello        Type = "hello"
	TypeSessionInit  Type = "session-init"
	TypeChat         Type = "chat"
	TypeSystem       Type = "system"
	TypeCmdNick      Type = "cmd-nick"
	TypeCmdJoin      Type = "cmd-join"
	TypeCmdQuit      Type = "cmd-quit"
	TypeFileStart    Type = "file-start"
	TypeFileChunk    Type = "file-chunk"
	TypeFileEnd      Type = "file-end"
	TypePing         Type = "ping"
	TypePong         Type = "pong"
	TypeError        Type = "error"
)

// Envelope is the single wire-level message shape. Fields are tagged
// omitempty and grouped by the Type that populates them; this mirrors the
// union-of-TypedDicts shape the original Python implementation used, but as
// one Go struct rather than a type switch over several payload structs,
// since every field maps onto a plain JSON object either way.
//
// Envelopes are serialized with encoding/json using compact separators, the
// self-describing text encoding used throughout the handshake and
// dispatcher.
type Envelope struct {
	Type Type `json:"type"`

	// hello
	PeerPublicKey string `json:"peer_public_key,omitempty"`
	Name          string `json:"name,omitempty"`
	Room          string `json:"room,omitempty"`
	Token         string `json:"token,omitempty"`
	Renderer      string `json:"renderer,omitempty"`
	BufferSize    int    `json:"buffer_size,omitempty"`

	// session-init
	WrappedKey        string  `json:"wrapped_key,omitempty"`
	ClientID          uint64  `json:"client_id,omitempty"`
	ServerTime        int64   `json:"server_time,omitempty"`
	HeartbeatInterval float64 `json:"heartbeat_interval,omitempty"`

	// chat / system
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`

	// file-start / file-chunk / file-end
	TransferID  string `json:"transfer_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Index       int    `json:"index,omitempty"`
	DataB64     string `json:"data_b64,omitempty"`
	Sha256      string `json:"sha256,omitempty"`

	// ping / pong
	Nonce string `json:"nonce,omitempty"`

	// error
	Code string `json:"code,omitempty"`
}

// Marshal serializes an envelope to its compact JSON form.
func Marshal(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %q: %w", e.Type, err)
	}
	return data, nil
}

// Unmarshal parses a JSON envelope. It does not reject unknown Type values
// — that decision belongs to the dispatcher, which must log and ignore them
// rather than fail the session.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: unmarshal envelope: %v", ErrProtocol, err)
	}
	return e, nil
}

// KnownTypes is the closed set of envelope types the dispatcher will act on.
var KnownTypes = map[Type]bool{
	TypeHello:       true,
	TypeSessionInit: true,
	TypeChat:        true,
	TypeSystem:      true,
	TypeCmdNick:     true,
	TypeCmdJoin:     true,
	TypeCmdQuit:     true,
	TypeFileStart:   true,
	TypeFileChunk:   true,
	TypeFileEnd:     true,
	TypePing:        true,
	TypePong:        true,
	TypeError:       true,
}
