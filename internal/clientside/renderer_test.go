package clientside

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

func TestRichRendererFormatsChat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer("rich", &buf)
	r.Render(protocol.Envelope{Type: protocol.TypeChat, Sender: "alice", Text: "hi"})

	if got := buf.String(); !strings.Contains(got, "alice: hi") {
		t.Errorf("Render() = %q, want it to contain %q", got, "alice: hi")
	}
}

func TestMinimalRendererDropsDecoration(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer("minimal", &buf)
	r.Render(protocol.Envelope{Type: protocol.TypeChat, Sender: "alice", Text: "hi"})

	if got := buf.String(); got != "alice: hi\n" {
		t.Errorf("Render() = %q, want %q", got, "alice: hi\n")
	}
}

func TestJSONRendererWritesOneObjectPerLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer("json", &buf)
	r.Render(protocol.Envelope{Type: protocol.TypeChat, Sender: "alice", Text: "hi"})
	r.Render(protocol.Envelope{Type: protocol.TypeSystem, Text: "bob joined"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"type":"chat"`) {
		t.Errorf("line 0 = %q, want type=chat", lines[0])
	}
}

func TestNewRendererDefaultsToRich(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer("unknown-kind", &buf)
	if _, ok := r.(*richRenderer); !ok {
		t.Fatalf("NewRenderer(%q) = %T, want *richRenderer", "unknown-kind", r)
	}
}
