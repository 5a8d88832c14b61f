// Package attribution decides, for every chat message, whether the bot should
// act and which URL the user means, without retaining message text.
package attribution

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"w2gbot/internal/domain"
)

// Replier sends a plain-text reply to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID domain.ChatID, replyTo domain.MessageID, text string) error
}

// RoomService ensures the chat has a room and adds url to its playlist,
// returning the room link.
type RoomService interface {
	Add(ctx context.Context, chatID domain.ChatID, url string) (string, error)
}

// Options holds the engine's windows and limits.
type Options struct {
	PromptGrace   time.Duration // invitation window
	RecencyWindow time.Duration // validity of the remembered last message
	UsedCapacity  int           // anti-replay ids kept per chat
	CallTimeout   time.Duration // per reply send
	HandleTimeout time.Duration // per message
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PromptGrace:   60 * time.Second,
		RecencyWindow: 5 * time.Minute,
		UsedCapacity:  20,
		CallTimeout:   5 * time.Second,
		HandleTimeout: 30 * time.Second,
	}
}

// Outcome is what Handle did with a message.
type Outcome int

const (
	OutcomeIgnored  Outcome = iota // ineligible, only remembered
	OutcomeSilent                  // eligible but passive, nothing found
	OutcomeInvalid                 // malformed URL in the message itself
	OutcomePrompted                // asked for a link, window opened
	OutcomeAdded                   // forwarded to the room
	OutcomeFailed                  // room service error
)

func (o Outcome) String() string {
	return [...]string{"ignored", "silent", "invalid", "prompted", "added", "failed"}[o]
}

type activationKey struct{}

// WithActivation tags ctx with the id of the update being processed, so the
// engine's log lines can be joined with the transport's.
func WithActivation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, activationKey{}, id)
}

// Engine runs the attribution protocol.
type Engine struct {
	self    Identity
	store   *Store
	rooms   RoomService
	replier Replier
	clock   Clock
	opts    Options
	log     logrus.FieldLogger
}

// NewEngine creates an Engine. A nil clock means SystemClock.
func NewEngine(self Identity, rooms RoomService, replier Replier, opts Options, clock Clock, logger logrus.FieldLogger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		self:    self,
		store:   NewStore(opts.UsedCapacity),
		rooms:   rooms,
		replier: replier,
		clock:   clock,
		opts:    opts,
		log:     logger.WithField("component", "attribution"),
	}
}

// Handle processes one inbound message. Messages for the same chat are
// serialized; at most one reply is sent.
func (e *Engine) Handle(ctx context.Context, msg domain.Message) Outcome {
	if e.opts.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.HandleTimeout)
		defer cancel()
	}

	st, release := e.store.Acquire(msg.ChatID)
	defer release()

	now := e.clock.Now()
	cur := NewSnapshot(msg, now)
	// The slot always ends up holding this message, whatever the outcome.
	defer st.Remember(cur)

	log := e.log.WithFields(logrus.Fields{
		"chat_id":    msg.ChatID,
		"message_id": msg.ID,
	})
	if id, ok := ctx.Value(activationKey{}).(string); ok {
		log = log.WithField("activation_id", id)
	}

	trig := Classify(msg, e.self, st, now)
	if !trig.Eligible() {
		return OutcomeIgnored
	}

	cand := Resolve(msg, cur, trig, st, now, e.opts.RecencyWindow)
	v := Validate(cand)
	log = log.WithFields(logrus.Fields{"trigger": trig.String(), "source": cand.Source.String()})

	if v.Invalid && cand.Source == SourceCurrent {
		log.Info("Rejected malformed link")
		e.reply(ctx, log, msg, ReplyInvalidURL)
		return OutcomeInvalid
	}
	if !v.Usable() {
		if !trig.Explicit() {
			log.Debug("No link in passive message")
			return OutcomeSilent
		}
		st.OpenPrompt(now, e.opts.PromptGrace)
		log.Info("No link found, prompting")
		e.reply(ctx, log, msg, ReplyPrompt)
		return OutcomePrompted
	}

	link, err := e.rooms.Add(ctx, msg.ChatID, v.URL)
	if err != nil {
		log.WithError(err).Error("Failed to add link to room")
		e.reply(ctx, log, msg, ReplyFailure)
		return OutcomeFailed
	}

	text := AddedReply(link)
	st.MarkUsed(cand.SourceMessageID, msg.ID)
	if cand.Source == SourceRemembered {
		st.Forget(cand.SourceMessageID)
	}
	log.WithField("url", v.URL).Info("Link added")
	e.reply(ctx, log, msg, text)
	return OutcomeAdded
}

// Prompt opens an invitation window for the chat, as if the bot had just
// asked for a link.
func (e *Engine) Prompt(chatID domain.ChatID) {
	st, release := e.store.Acquire(chatID)
	defer release()
	st.OpenPrompt(e.clock.Now(), e.opts.PromptGrace)
}

// Exclusive runs fn while holding the chat's lock, so commands that touch the
// chat's room cannot race an attribution in flight.
func (e *Engine) Exclusive(chatID domain.ChatID, fn func()) {
	_, release := e.store.Acquire(chatID)
	defer release()
	fn()
}

func (e *Engine) reply(ctx context.Context, log logrus.FieldLogger, msg domain.Message, text string) {
	if e.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
	}
	if err := e.replier.Reply(ctx, msg.ChatID, msg.ID, text); err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}
