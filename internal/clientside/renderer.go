package clientside

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// Renderer turns a decrypted envelope into terminal output. The three
// concrete renderers differ only in formatting — none of them inspect
// anything beyond the envelope passed to them.
type Renderer interface {
	Render(env protocol.Envelope)
}

// NewRenderer returns the renderer named by kind ("rich", "minimal",
// "json"), defaulting to rich for any unrecognized value.
func NewRenderer(kind string, w io.Writer) Renderer {
	switch kind {
	case "minimal":
		return &minimalRenderer{w: w}
	case "json":
		return &jsonRenderer{w: w}
	default:
		return &richRenderer{w: w}
	}
}

// richRenderer renders timestamps, sender names, and system/file events
// with light decoration, the default terminal experience.
type richRenderer struct {
	w io.Writer
}

func (r *richRenderer) Render(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChat:
		fmt.Fprintf(r.w, "[%s] %s: %s\n", formatTs(env.Ts), env.Sender, env.Text)
	case protocol.TypeSystem:
		fmt.Fprintf(r.w, "* %s\n", env.Text)
	case protocol.TypeFileStart:
		fmt.Fprintf(r.w, "* %s is sending %s (%d bytes)\n", env.Sender, env.Filename, env.Size)
	case protocol.TypeFileEnd:
		fmt.Fprintf(r.w, "* transfer %s complete, sha256=%s\n", env.TransferID, env.Sha256)
	case protocol.TypeError:
		fmt.Fprintf(r.w, "! error: %s\n", env.Code)
	case protocol.TypeFileChunk:
		// Chunk progress is not rendered; file-start/file-end bracket it.
	default:
		fmt.Fprintf(r.w, "? %s\n", env.Type)
	}
}

// minimalRenderer strips decoration down to "sender: text" for chat and a
// bare line for system, file-start, file-end and error envelopes; it prints
// nothing for file-chunk or any other type.
type minimalRenderer struct {
	w io.Writer
}

func (r *minimalRenderer) Render(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChat:
		fmt.Fprintf(r.w, "%s: %s\n", env.Sender, env.Text)
	case protocol.TypeSystem:
		fmt.Fprintln(r.w, env.Text)
	case protocol.TypeFileStart:
		fmt.Fprintf(r.w, "%s -> %s\n", env.Sender, env.Filename)
	case protocol.TypeFileEnd:
		fmt.Fprintf(r.w, "done %s\n", env.TransferID)
	case protocol.TypeError:
		fmt.Fprintf(r.w, "error %s\n", env.Code)
	case protocol.TypeFileChunk:
	default:
	}
}

// jsonRenderer writes one compact JSON object per envelope — the
// structured-text renderer, intended for piping into another tool.
type jsonRenderer struct {
	w io.Writer
}

func (r *jsonRenderer) Render(env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	r.w.Write(data)
	r.w.Write([]byte("\n"))
}

func formatTs(ms int64) string {
	if ms == 0 {
		return time.Now().Format("15:04:05")
	}
	return time.UnixMilli(ms).Format("15:04:05")
}
