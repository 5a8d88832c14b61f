package attribution

import (
	"strings"
	"time"

	"w2gbot/internal/domain"
)

// Trigger is why a message is (or is not) processed.
type Trigger int

const (
	TriggerNone    Trigger = iota // passive group message
	TriggerPrivate                // one-to-one conversation
	TriggerMention                // mentions the bot
	TriggerReply                  // replies to one of the bot's messages
	TriggerPrompt                 // arrived inside an open invitation window
)

func (t Trigger) String() string {
	switch t {
	case TriggerPrivate:
		return "private"
	case TriggerMention:
		return "mention"
	case TriggerReply:
		return "reply"
	case TriggerPrompt:
		return "prompt"
	default:
		return "none"
	}
}

// Eligible reports whether the message goes through attribution at all.
func (t Trigger) Eligible() bool { return t != TriggerNone }

// Explicit reports whether the user addressed the bot directly. Only explicit
// triggers get a prompt back when no link is found.
func (t Trigger) Explicit() bool {
	return t == TriggerPrivate || t == TriggerMention || t == TriggerReply
}

// Identity is the bot's own account.
type Identity struct {
	ID       domain.UserID
	Username string
}

func (id Identity) handle() string {
	return "@" + strings.TrimPrefix(id.Username, "@")
}

// Classify decides eligibility. Any eligible message closes an open invitation
// window, so at most one message ever consumes a given window.
func Classify(msg domain.Message, self Identity, st *ChatState, now time.Time) Trigger {
	t := TriggerNone
	switch {
	case msg.Private:
		t = TriggerPrivate
	case IsMention(msg, self):
		t = TriggerMention
	case msg.ReplyTo != nil && msg.ReplyTo.FromID == self.ID:
		t = TriggerReply
	}
	if st.ConsumePrompt(now) && t == TriggerNone {
		t = TriggerPrompt
	}
	return t
}

// IsMention reports whether msg mentions the bot: a mention entity equal to
// the bot's handle (case-insensitive), a text_mention of the bot's user, or,
// when the message carries no mention entities at all, the handle appearing
// in the text as a whole word.
func IsMention(msg domain.Message, self Identity) bool {
	handle := self.handle()
	annotated := false
	for _, e := range msg.Entities {
		switch e.Type {
		case domain.EntityMention:
			annotated = true
			if self.Username != "" && strings.EqualFold(sliceUTF16(msg.Text, e.Offset, e.Length), handle) {
				return true
			}
		case domain.EntityTextMention:
			if e.UserID != 0 && e.UserID == self.ID {
				return true
			}
		}
	}
	if self.Username == "" || annotated {
		return false
	}
	return containsHandle(strings.ToLower(msg.Text), strings.ToLower(handle))
}

// containsHandle reports whether handle occurs in text not followed by another
// username character, so "@bot" does not match "@botfan".
func containsHandle(text, handle string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], handle)
		if j < 0 {
			return false
		}
		end := i + j + len(handle)
		if end == len(text) || !isHandleByte(text[end]) {
			return true
		}
		i = end
	}
}

func isHandleByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
