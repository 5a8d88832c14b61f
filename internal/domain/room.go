package domain

import "time"

// Room is the durable mapping from a chat to its Watch2Gether room.
type Room struct {
	// ChatID is the Telegram chat the room belongs to (the primary key).
	ChatID ChatID `json:"chat_id"`

	// Key is the W2G stream key addressing the room.
	Key string `json:"key"`

	// CreatedAt indicates when the room was created.
	CreatedAt time.Time `json:"created_at"`
}
