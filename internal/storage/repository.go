package storage

import (
	"context"

	"w2gbot/internal/domain"
)

// Repository defines the durable chat→room mapping.
// Implementations must survive process restarts; there is one row per chat.
type Repository interface {
	// GetRoom returns the room stored for chatID. The boolean is false when
	// the chat has no room yet; that is not an error.
	GetRoom(ctx context.Context, chatID domain.ChatID) (domain.Room, bool, error)

	// SaveRoom stores a room, replacing any previous room for the same chat.
	SaveRoom(ctx context.Context, room domain.Room) error

	// Close gracefully shuts down the repository connection.
	Close() error
}
