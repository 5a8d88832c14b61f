package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"w2gbot/internal/domain"
)

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// generateRoomKey creates the key under which a chat's room is stored.
// Format: chat:{chatID}:room
func generateRoomKey(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("chat:%d:room", chatID))
}

// GetRoom looks up the room for a chat.
func (r *BadgerRepository) GetRoom(ctx context.Context, chatID domain.ChatID) (domain.Room, bool, error) {
	log := r.log.WithField("chat_id", chatID)

	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(generateRoomKey(chatID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &room)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		log.Debug("No room stored for chat")
		return domain.Room{}, false, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to read room from BadgerDB")
		return domain.Room{}, false, fmt.Errorf("failed to get room for chat %d: %w", chatID, err)
	}
	return room, true, nil
}

// SaveRoom stores or replaces the room for room.ChatID.
func (r *BadgerRepository) SaveRoom(ctx context.Context, room domain.Room) error {
	log := r.log.WithFields(logrus.Fields{
		"chat_id":  room.ChatID,
		"room_key": room.Key,
	})

	if room.Key == "" {
		return fmt.Errorf("refusing to save room for chat %d: empty key", room.ChatID)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}

	roomBytes, err := json.Marshal(room)
	if err != nil {
		log.WithError(err).Error("Failed to marshal room to JSON")
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(generateRoomKey(room.ChatID), roomBytes))
	})
	if err != nil {
		log.WithError(err).Error("Failed to save room to BadgerDB")
		return fmt.Errorf("failed to save room: %w", err)
	}

	log.Info("Room saved")
	return nil
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
