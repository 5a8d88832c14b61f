package bot

import (
	"github.com/go-telegram/bot/models"

	"w2gbot/internal/domain"
)

// toMessage maps a Telegram message onto the transport-neutral shape. Media
// captions stand in for text. The replied-to message is converted one level
// deep only.
func toMessage(m *models.Message) domain.Message {
	msg := convertOne(m)
	if m.ReplyToMessage != nil {
		parent := convertOne(m.ReplyToMessage)
		parent.ChatID = msg.ChatID
		msg.ReplyTo = &parent
	}
	return msg
}

func convertOne(m *models.Message) domain.Message {
	text, entities := m.Text, m.Entities
	if text == "" && m.Caption != "" {
		text, entities = m.Caption, m.CaptionEntities
	}

	msg := domain.Message{
		ChatID:  domain.ChatID(m.Chat.ID),
		ID:      domain.MessageID(m.ID),
		Private: m.Chat.Type == models.ChatTypePrivate,
		Text:    text,
	}
	if m.From != nil {
		msg.FromID = domain.UserID(m.From.ID)
		msg.FromIsBot = m.From.IsBot
	}
	if len(entities) > 0 {
		msg.Entities = make([]domain.Entity, 0, len(entities))
		for _, e := range entities {
			ent := domain.Entity{
				Type:   string(e.Type),
				Offset: e.Offset,
				Length: e.Length,
				URL:    e.URL,
			}
			if e.User != nil {
				ent.UserID = domain.UserID(e.User.ID)
			}
			msg.Entities = append(msg.Entities, ent)
		}
	}
	return msg
}
