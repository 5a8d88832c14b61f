package bot

import (
	"fmt"
	"strings"

	"w2gbot/internal/domain"
)

const (
	commandStart = "start"
	commandHelp  = "help"
	commandRoom  = "room"
	commandClear = "clear"
)

const (
	startText = "Hi! I keep a Watch2Gether room for this chat.\n" +
		"Send me a link now, or mention me next to one, and I'll add it to the playlist."
	helpText = "Mention me in a message with a link, reply to a link while mentioning me, " +
		"or reply to one of my messages with a link, and I'll add it to this chat's Watch2Gether room.\n\n" +
		"/room - show the room link\n" +
		"/clear - start over with a new room\n" +
		"/help - show this message"
)

func roomText(link string) string {
	return fmt.Sprintf("Room: %s", link)
}

func newRoomText(link string) string {
	return fmt.Sprintf("New room created 🎬\nRoom: %s", link)
}

// parseCommand returns the command name when msg starts with a bot_command
// entity addressed to us: "/room" or "/room@handle" with our handle.
func parseCommand(msg domain.Message, username string) (string, bool) {
	if len(msg.Entities) == 0 {
		return "", false
	}
	e := msg.Entities[0]
	if e.Type != domain.EntityBotCommand || e.Offset != 0 || e.Length < 2 || e.Length > len(msg.Text) {
		return "", false
	}
	// Commands are ASCII, so UTF-16 units and bytes coincide here.
	token := msg.Text[1:e.Length]
	name, handle, addressed := strings.Cut(token, "@")
	if addressed && !strings.EqualFold(handle, strings.TrimPrefix(username, "@")) {
		return "", false
	}
	return strings.ToLower(name), true
}
