package bot

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"w2gbot/internal/attribution"
	"w2gbot/internal/config"
	"w2gbot/internal/domain"
)

// Rooms is the room service as seen by the bot.
type Rooms interface {
	attribution.RoomService
	Ensure(ctx context.Context, chatID domain.ChatID, initialURL string) (domain.Room, error)
	Replace(ctx context.Context, chatID domain.ChatID) (domain.Room, error)
	Link(room domain.Room) string
}

// sender is the part of *tgbot.Bot used for replies.
type sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot    *tgbot.Bot
	sender sender
	self   attribution.Identity
	engine *attribution.Engine
	queues *chatQueues
	rooms  Rooms
	opts   attribution.Options
	log    logrus.FieldLogger
}

// EngineOptions maps configuration onto attribution options.
func EngineOptions(cfg config.Config) attribution.Options {
	return attribution.Options{
		PromptGrace:   cfg.PromptGrace,
		RecencyWindow: cfg.RecencyWindow,
		UsedCapacity:  cfg.UsedIDsCapacity,
		CallTimeout:   cfg.CallTimeout,
		HandleTimeout: cfg.HandleTimeout,
	}
}

// NewHandler creates the Telegram bot, resolves its own identity and wires the
// attribution engine to it.
func NewHandler(ctx context.Context, cfg config.Config, rooms Rooms, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	// Handlers run synchronously on the polling goroutine and only enqueue,
	// so each chat's queue sees updates in arrival order.
	var h *Handler
	b, err := tgbot.New(cfg.TelegramBotToken,
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			h.enqueue(ctx, update)
		}),
	)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot identity: %w", err)
	}
	self := attribution.Identity{ID: domain.UserID(me.ID), Username: me.Username}

	h = newHandler(b, self, rooms, EngineOptions(cfg), nil, logger)
	h.bot = b

	log.WithFields(logrus.Fields{
		"bot_id":       me.ID,
		"bot_username": me.Username,
	}).Info("Telegram bot handler initialized")
	return h, nil
}

func newHandler(s sender, self attribution.Identity, rooms Rooms, opts attribution.Options, clock attribution.Clock, logger logrus.FieldLogger) *Handler {
	h := &Handler{
		sender: s,
		self:   self,
		queues: newChatQueues(),
		rooms:  rooms,
		opts:   opts,
		log:    logger.WithField("component", "bot_handler"),
	}
	h.engine = attribution.NewEngine(self, rooms, h, opts, clock, logger)
	return h
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.queues.Wait()
	h.log.Info("Telegram bot polling stopped.")
}

// Reply sends text to the chat as a reply to message replyTo. It implements
// attribution.Replier.
func (h *Handler) Reply(ctx context.Context, chatID domain.ChatID, replyTo domain.MessageID, text string) error {
	params := &tgbot.SendMessageParams{
		ChatID: int64(chatID),
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                int(replyTo),
			AllowSendingWithoutReply: true,
		}
	}
	if _, err := h.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// enqueue hands the update to its chat's worker.
func (h *Handler) enqueue(ctx context.Context, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	chatID := domain.ChatID(update.Message.Chat.ID)
	if !h.queues.Submit(ctx, chatID, func() { h.handleUpdate(ctx, update) }) {
		h.log.WithField("chat_id", chatID).Warn("Dropped update on shutdown")
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	msg := toMessage(update.Message)
	activationID := uuid.NewString()
	ctx = attribution.WithActivation(ctx, activationID)
	log := h.log.WithFields(logrus.Fields{
		"activation_id": activationID,
		"chat_id":       msg.ChatID,
		"message_id":    msg.ID,
	})

	if name, ok := parseCommand(msg, h.self.Username); ok && h.runCommand(ctx, log, name, msg) {
		return
	}

	outcome := h.engine.Handle(ctx, msg)
	log.WithField("outcome", outcome.String()).Debug("Message handled")
}

// runCommand executes a known command and reports whether it did.
func (h *Handler) runCommand(ctx context.Context, log logrus.FieldLogger, name string, msg domain.Message) bool {
	log = log.WithField("command", "/"+name)
	switch name {
	case commandStart:
		log.Info("Received command")
		h.engine.Prompt(msg.ChatID)
		h.send(ctx, log, msg, startText)
	case commandHelp:
		log.Info("Received command")
		h.send(ctx, log, msg, helpText)
	case commandRoom:
		log.Info("Received command")
		h.engine.Exclusive(msg.ChatID, func() {
			room, err := h.rooms.Ensure(ctx, msg.ChatID, "")
			if err != nil {
				log.WithError(err).Error("Failed to ensure room")
				h.send(ctx, log, msg, attribution.ReplyFailure)
				return
			}
			h.send(ctx, log, msg, roomText(h.rooms.Link(room)))
		})
	case commandClear:
		log.Info("Received command")
		h.engine.Exclusive(msg.ChatID, func() {
			room, err := h.rooms.Replace(ctx, msg.ChatID)
			if err != nil {
				log.WithError(err).Error("Failed to replace room")
				h.send(ctx, log, msg, attribution.ReplyFailure)
				return
			}
			log.WithField("room_key", room.Key).Info("Room replaced")
			h.send(ctx, log, msg, newRoomText(h.rooms.Link(room)))
		})
	default:
		return false
	}
	return true
}

func (h *Handler) send(ctx context.Context, log logrus.FieldLogger, msg domain.Message, text string) {
	if h.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.CallTimeout)
		defer cancel()
	}
	if err := h.Reply(ctx, msg.ChatID, msg.ID, text); err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}
