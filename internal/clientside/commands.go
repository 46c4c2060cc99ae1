package clientside

import (
	"strings"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// Action is what one line of terminal input resolves to.
type Action struct {
	Envelope protocol.Envelope // zero value when Kind is ActionNone/ActionHelp/ActionClear
	Kind     ActionKind
	Path     string // set only for ActionSendFile
}

// ActionKind discriminates what ParseLine decided a line of input means.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionEnvelope
	ActionSendFile
	ActionClear
	ActionHelp
	ActionQuit
)

// HelpText is printed for /help.
const HelpText = `commands:
  /nick NAME     change your display name
  /join ROOM     switch rooms
  /send PATH     send a file
  /clear         clear the local screen buffer
  /help          show this text
  /quit          disconnect`

// ParseLine interprets one line of terminal input: a bare line becomes a
// chat envelope; a slash-prefixed line becomes a command.
func ParseLine(line string) Action {
	if !strings.HasPrefix(line, "/") {
		if line == "" {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionEnvelope, Envelope: protocol.Envelope{Type: protocol.TypeChat, Text: line}}
	}

	cmd, arg := splitCommand(line)
	switch cmd {
	case "/nick":
		if arg == "" {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionEnvelope, Envelope: protocol.Envelope{Type: protocol.TypeCmdNick, Name: arg}}
	case "/join":
		if arg == "" {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionEnvelope, Envelope: protocol.Envelope{Type: protocol.TypeCmdJoin, Room: arg}}
	case "/send":
		if arg == "" {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionSendFile, Path: arg}
	case "/clear":
		return Action{Kind: ActionClear}
	case "/help":
		return Action{Kind: ActionHelp}
	case "/quit":
		return Action{Kind: ActionQuit, Envelope: protocol.Envelope{Type: protocol.TypeCmdQuit}}
	default:
		return Action{Kind: ActionNone}
	}
}

func splitCommand(line string) (cmd, arg string) {
	line = strings.TrimRight(line, " \t")
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return line, ""
	}
	return line[:sp], strings.TrimSpace(line[sp+1:])
}
