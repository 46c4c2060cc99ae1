package clientside

import (
	"testing"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

func TestParseLinePlainTextIsChat(t *testing.T) {
	t.Parallel()

	got := ParseLine("hello room")
	if got.Kind != ActionEnvelope || got.Envelope.Type != protocol.TypeChat || got.Envelope.Text != "hello room" {
		t.Fatalf("ParseLine() = %+v, want chat envelope", got)
	}
}

func TestParseLineEmptyLineIsNoop(t *testing.T) {
	t.Parallel()

	if got := ParseLine(""); got.Kind != ActionNone {
		t.Fatalf("ParseLine(\"\").Kind = %v, want ActionNone", got.Kind)
	}
}

func TestParseLineNick(t *testing.T) {
	t.Parallel()

	got := ParseLine("/nick newname")
	if got.Kind != ActionEnvelope || got.Envelope.Type != protocol.TypeCmdNick || got.Envelope.Name != "newname" {
		t.Fatalf("ParseLine() = %+v, want cmd-nick envelope", got)
	}
}

func TestParseLineJoin(t *testing.T) {
	t.Parallel()

	got := ParseLine("/join general")
	if got.Kind != ActionEnvelope || got.Envelope.Type != protocol.TypeCmdJoin || got.Envelope.Room != "general" {
		t.Fatalf("ParseLine() = %+v, want cmd-join envelope", got)
	}
}

func TestParseLineSend(t *testing.T) {
	t.Parallel()

	got := ParseLine("/send /tmp/report.pdf")
	if got.Kind != ActionSendFile || got.Path != "/tmp/report.pdf" {
		t.Fatalf("ParseLine() = %+v, want ActionSendFile", got)
	}
}

func TestParseLineClearHelpQuit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		want ActionKind
	}{
		{"/clear", ActionClear},
		{"/help", ActionHelp},
		{"/quit", ActionQuit},
	}
	for _, tc := range cases {
		if got := ParseLine(tc.line); got.Kind != tc.want {
			t.Errorf("ParseLine(%q).Kind = %v, want %v", tc.line, got.Kind, tc.want)
		}
	}
}

func TestParseLineUnknownCommandIsNoop(t *testing.T) {
	t.Parallel()

	if got := ParseLine("/frobnicate"); got.Kind != ActionNone {
		t.Fatalf("ParseLine(\"/frobnicate\").Kind = %v, want ActionNone", got.Kind)
	}
}

func TestParseLineCommandsWithoutArgsAreNoop(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"/nick", "/join", "/send"} {
		if got := ParseLine(line); got.Kind != ActionNone {
			t.Errorf("ParseLine(%q).Kind = %v, want ActionNone", line, got.Kind)
		}
	}
}
