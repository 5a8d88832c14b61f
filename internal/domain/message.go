package domain

// ChatID identifies a conversation (group or direct).
type ChatID int64

// MessageID identifies a message within a chat. Telegram issues them
// monotonically per chat.
type MessageID int

// UserID identifies a message author.
type UserID int64

// Entity types understood by the bot. The values match the Telegram Bot API.
const (
	EntityURL         = "url"
	EntityTextLink    = "text_link"
	EntityMention     = "mention"
	EntityTextMention = "text_mention"
	EntityBotCommand  = "bot_command"
)

// Entity is a platform-supplied annotation over a span of the message text.
// Offset and Length are measured in UTF-16 code units.
type Entity struct {
	Type   string
	Offset int
	Length int

	// URL is set for text_link entities only.
	URL string

	// UserID is set for text_mention entities only.
	UserID UserID
}

// Message is an inbound chat message, independent of the transport library.
// Text holds the message text, or the caption for media messages.
type Message struct {
	ChatID    ChatID
	ID        MessageID
	FromID    UserID
	FromIsBot bool
	Private   bool
	Text      string
	Entities  []Entity

	// ReplyTo is the message this one replies to, if any. Only one level
	// deep; ReplyTo.ReplyTo is always nil.
	ReplyTo *Message
}
