// Package rooms keeps one Watch2Gether room per chat.
package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"w2gbot/internal/domain"
	"w2gbot/internal/storage"
)

// API is the part of the W2G client the service needs.
type API interface {
	CreateRoom(ctx context.Context, initialURL string) (string, error)
	AddToPlaylist(ctx context.Context, roomKey, itemURL, title string) error
	RoomURL(key string) string
}

// Service ensures rooms exist and forwards links to them.
// Callers serialize calls for the same chat; the service itself does not.
type Service struct {
	repo        storage.Repository
	api         API
	callTimeout time.Duration
	log         logrus.FieldLogger
}

// NewService creates a Service. callTimeout bounds each repository and API call.
func NewService(repo storage.Repository, api API, callTimeout time.Duration, logger logrus.FieldLogger) *Service {
	return &Service{
		repo:        repo,
		api:         api,
		callTimeout: callTimeout,
		log:         logger.WithField("component", "rooms"),
	}
}

// Link returns the user-facing URL of a room.
func (s *Service) Link(room domain.Room) string {
	return s.api.RoomURL(room.Key)
}

// Ensure returns the chat's stored room, creating one (preloaded with
// initialURL, which may be empty) when none exists.
func (s *Service) Ensure(ctx context.Context, chatID domain.ChatID, initialURL string) (domain.Room, error) {
	var (
		room  domain.Room
		found bool
	)
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		room, found, err = s.repo.GetRoom(ctx, chatID)
		return err
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to look up room: %w", err)
	}
	if found {
		return room, nil
	}
	return s.create(ctx, chatID, initialURL)
}

// Replace creates a fresh room and overwrites the stored key.
func (s *Service) Replace(ctx context.Context, chatID domain.ChatID) (domain.Room, error) {
	return s.create(ctx, chatID, "")
}

// Add ensures the chat has a room and appends itemURL to its playlist.
// It returns the room link.
func (s *Service) Add(ctx context.Context, chatID domain.ChatID, itemURL string) (string, error) {
	room, err := s.Ensure(ctx, chatID, itemURL)
	if err != nil {
		return "", err
	}
	// Not wrapped in s.call: the metadata lookup and the playlist request
	// each carry their own timeout, and together they may exceed one call's.
	if err := s.api.AddToPlaylist(ctx, room.Key, itemURL, ""); err != nil {
		return "", fmt.Errorf("failed to add to playlist: %w", err)
	}
	return s.Link(room), nil
}

func (s *Service) create(ctx context.Context, chatID domain.ChatID, initialURL string) (domain.Room, error) {
	log := s.log.WithField("chat_id", chatID)

	var key string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		key, err = s.api.CreateRoom(ctx, initialURL)
		return err
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	room := domain.Room{ChatID: chatID, Key: key, CreatedAt: time.Now()}
	err = s.call(ctx, func(ctx context.Context) error {
		return s.repo.SaveRoom(ctx, room)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to store room: %w", err)
	}
	log.WithField("room_key", key).Info("New room bound to chat")
	return room, nil
}

func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	if s.callTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(callCtx)
}
