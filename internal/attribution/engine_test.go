package attribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w2gbot/internal/domain"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type added struct {
	chatID domain.ChatID
	url    string
}

type fakeRooms struct {
	mu       sync.Mutex
	adds     []added
	err      error
	delay    time.Duration
	inFlight map[domain.ChatID]int
	maxSeen  int
}

func (r *fakeRooms) Add(ctx context.Context, chatID domain.ChatID, url string) (string, error) {
	r.mu.Lock()
	if r.inFlight == nil {
		r.inFlight = make(map[domain.ChatID]int)
	}
	r.inFlight[chatID]++
	if r.inFlight[chatID] > r.maxSeen {
		r.maxSeen = r.inFlight[chatID]
	}
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[chatID]--
	if r.err != nil {
		return "", r.err
	}
	r.adds = append(r.adds, added{chatID: chatID, url: url})
	return fmt.Sprintf("https://w2g.tv/rooms/room%d", chatID), nil
}

func (r *fakeRooms) Added() []added {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]added(nil), r.adds...)
}

type sentReply struct {
	chatID  domain.ChatID
	replyTo domain.MessageID
	text    string
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []sentReply
	err     error
}

func (f *fakeReplier) Reply(ctx context.Context, chatID domain.ChatID, replyTo domain.MessageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{chatID: chatID, replyTo: replyTo, text: text})
	return f.err
}

func (f *fakeReplier) Sent() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

type harness struct {
	engine  *Engine
	clock   *manualClock
	rooms   *fakeRooms
	replier *fakeReplier
	logs    *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		clock:   &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		rooms:   &fakeRooms{},
		replier: &fakeReplier{},
		logs:    hook,
	}
	h.engine = NewEngine(testBot, h.rooms, h.replier, DefaultOptions(), h.clock, logger)
	return h
}

func groupText(id domain.MessageID, from domain.UserID, text string, entities ...domain.Entity) domain.Message {
	return domain.Message{ChatID: -100, ID: id, FromID: from, Text: text, Entities: entities}
}

func mentionBot(id domain.MessageID, from domain.UserID) domain.Message {
	return groupText(id, from, "@WatchBot", domain.Entity{Type: domain.EntityMention, Offset: 0, Length: 9})
}

func urlEntity(offset, length int) domain.Entity {
	return domain.Entity{Type: domain.EntityURL, Offset: offset, Length: length}
}

func TestEngine_DirectMessageAddsCanonicalLink(t *testing.T) {
	h := newHarness(t)
	msg := domain.Message{
		ChatID:   42,
		ID:       1,
		FromID:   7,
		Private:  true,
		Text:     "check this out youtu.be/abc123",
		Entities: []domain.Entity{urlEntity(15, 15)},
	}

	assert.Equal(t, OutcomeAdded, h.engine.Handle(context.Background(), msg))

	require.Len(t, h.rooms.Added(), 1)
	assert.Equal(t, added{chatID: 42, url: "https://www.youtube.com/watch?v=abc123"}, h.rooms.Added()[0])
	sent := h.replier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MessageID(1), sent[0].replyTo)
	assert.Contains(t, sent[0].text, "Added ✅")
	assert.Contains(t, sent[0].text, "https://w2g.tv/rooms/room42")
}

func TestEngine_PromptThenFulfillment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(1, 7)))
	require.Len(t, h.replier.Sent(), 1)
	assert.Equal(t, ReplyPrompt, h.replier.Sent()[0].text)

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, OutcomeAdded, h.engine.Handle(ctx, groupText(2, 7, "vimeo.com/123", urlEntity(0, 13))))

	require.Len(t, h.rooms.Added(), 1)
	assert.Equal(t, "https://vimeo.com/123", h.rooms.Added()[0].url)
	require.Len(t, h.replier.Sent(), 2)
	assert.Contains(t, h.replier.Sent()[1].text, "Added ✅")

	// The window was consumed; a further link is passive.
	h.clock.Advance(time.Second)
	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(3, 7, "vimeo.com/456", urlEntity(0, 13))))
	assert.Len(t, h.rooms.Added(), 1)
}

func TestEngine_ExpiredPromptIsPassive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(1, 7)))

	h.clock.Advance(65 * time.Second)
	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(2, 7, "vimeo.com/123", urlEntity(0, 13))))

	assert.Empty(t, h.rooms.Added())
	assert.Len(t, h.replier.Sent(), 1, "only the original prompt")
}

func TestEngine_PromptWindowWithoutLinkStaysSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.Prompt(-100)
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, OutcomeSilent, h.engine.Handle(ctx, groupText(1, 7, "nice weather")))
	assert.Empty(t, h.replier.Sent())

	// The silent message consumed the window.
	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(2, 7, "vimeo.com/123", urlEntity(0, 13))))
	assert.Empty(t, h.rooms.Added())
}

func TestEngine_RetagOfConsumedReplyPrompts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original := groupText(10, 7, "@WatchBot youtu.be/x1", domain.Entity{Type: domain.EntityMention, Length: 9}, urlEntity(10, 11))
	require.Equal(t, OutcomeAdded, h.engine.Handle(ctx, original))

	h.clock.Advance(10 * time.Second)
	retag := mentionBot(11, 7)
	retag.ReplyTo = &original
	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, retag))

	assert.Len(t, h.rooms.Added(), 1, "no duplicate add")
	sent := h.replier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, ReplyPrompt, sent[1].text)
}

func TestEngine_InvalidCurrentLink(t *testing.T) {
	h := newHarness(t)
	msg := groupText(1, 7, "@WatchBot notaurl", domain.Entity{Type: domain.EntityMention, Length: 9}, urlEntity(10, 7))

	assert.Equal(t, OutcomeInvalid, h.engine.Handle(context.Background(), msg))

	assert.Empty(t, h.rooms.Added())
	sent := h.replier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ReplyInvalidURL, sent[0].text)
}

func TestEngine_InvalidReplySourceIsTreatedAsAbsent(t *testing.T) {
	h := newHarness(t)
	parent := groupText(1, 8, "notaurl", urlEntity(0, 7))
	msg := mentionBot(2, 7)
	msg.ReplyTo = &parent

	assert.Equal(t, OutcomePrompted, h.engine.Handle(context.Background(), msg))
	require.Len(t, h.replier.Sent(), 1)
	assert.Equal(t, ReplyPrompt, h.replier.Sent()[0].text)
}

func TestEngine_MentionUsesRememberedLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(1, 7, "vimeo.com/9", urlEntity(0, 11))))
	h.clock.Advance(30 * time.Second)
	assert.Equal(t, OutcomeAdded, h.engine.Handle(ctx, mentionBot(2, 7)))
	require.Len(t, h.rooms.Added(), 1)
	assert.Equal(t, "https://vimeo.com/9", h.rooms.Added()[0].url)

	// The remembered slot was spent; a second mention prompts.
	h.clock.Advance(time.Second)
	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(3, 7)))
	assert.Len(t, h.rooms.Added(), 1)
}

func TestEngine_RememberedLinkFromAnotherUserIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.Handle(ctx, groupText(1, 8, "vimeo.com/9", urlEntity(0, 11)))
	h.clock.Advance(30 * time.Second)
	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(2, 7)))
	assert.Empty(t, h.rooms.Added())
}

func TestEngine_RememberedLinkExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.Handle(ctx, groupText(1, 7, "vimeo.com/9", urlEntity(0, 11)))
	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(2, 7)))
	assert.Empty(t, h.rooms.Added())
}

func TestEngine_PassiveMessagesNeverReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg := groupText(domain.MessageID(i), 7, "vimeo.com/9", urlEntity(0, 11))
		assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, msg))
		h.clock.Advance(time.Second)
	}
	assert.Empty(t, h.replier.Sent())
	assert.Empty(t, h.rooms.Added())

	st, release := h.engine.store.Acquire(-100)
	defer release()
	for i := 1; i <= 5; i++ {
		assert.False(t, st.IsUsed(domain.MessageID(i)))
	}
}

func TestEngine_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	msg := domain.Message{ChatID: 42, ID: 1, FromID: 7, Private: true, Text: "vimeo.com/9", Entities: []domain.Entity{urlEntity(0, 11)}}

	assert.Equal(t, OutcomeAdded, h.engine.Handle(ctx, msg))
	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, msg))
	assert.Len(t, h.rooms.Added(), 1)
}

func TestEngine_FailureDoesNotConsumeSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rooms.err = errors.New("w2g down")
	msg := domain.Message{ChatID: 42, ID: 1, FromID: 7, Private: true, Text: "vimeo.com/9", Entities: []domain.Entity{urlEntity(0, 11)}}

	assert.Equal(t, OutcomeFailed, h.engine.Handle(ctx, msg))
	require.Len(t, h.replier.Sent(), 1)
	assert.Equal(t, ReplyFailure, h.replier.Sent()[0].text)

	h.rooms.mu.Lock()
	h.rooms.err = nil
	h.rooms.mu.Unlock()
	assert.Equal(t, OutcomeAdded, h.engine.Handle(ctx, msg), "the same message can be retried")
}

func TestEngine_ReplyErrorDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.replier.err = errors.New("telegram down")
	msg := domain.Message{ChatID: 42, ID: 1, FromID: 7, Private: true, Text: "vimeo.com/9", Entities: []domain.Entity{urlEntity(0, 11)}}

	assert.Equal(t, OutcomeAdded, h.engine.Handle(context.Background(), msg))
	assert.Len(t, h.replier.Sent(), 1)
}

func TestEngine_NeverLogsMessageText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rooms.err = errors.New("boom")

	h.engine.Handle(ctx, groupText(1, 7, "my secret plans vimeo.com/9", urlEntity(16, 11)))
	h.engine.Handle(ctx, groupText(2, 7, "@WatchBot my secret plans", domain.Entity{Type: domain.EntityMention, Length: 9}))
	h.engine.Handle(ctx, groupText(3, 7, "@WatchBot secret notaurl", domain.Entity{Type: domain.EntityMention, Length: 9}, urlEntity(17, 7)))

	require.NotEmpty(t, h.logs.AllEntries())
	for _, entry := range h.logs.AllEntries() {
		assert.NotContains(t, entry.Message, "secret")
		for _, v := range entry.Data {
			assert.NotContains(t, fmt.Sprint(v), "secret")
		}
	}
}

func TestEngine_SerializesSameChat(t *testing.T) {
	h := newHarness(t)
	h.rooms.delay = 5 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(id domain.MessageID) {
			defer wg.Done()
			h.engine.Handle(ctx, domain.Message{
				ChatID:   42,
				ID:       id,
				FromID:   7,
				Private:  true,
				Text:     "vimeo.com/9",
				Entities: []domain.Entity{urlEntity(0, 11)},
			})
		}(domain.MessageID(i))
	}
	wg.Wait()

	assert.Equal(t, 1, h.rooms.maxSeen)
	assert.Len(t, h.rooms.Added(), 10)
	for _, r := range h.replier.Sent() {
		assert.True(t, strings.HasPrefix(r.text, "Added ✅"))
	}
}

func TestEngine_LogsCarryActivationID(t *testing.T) {
	h := newHarness(t)
	ctx := WithActivation(context.Background(), "act-1")
	msg := groupText(1, 7, "@WatchBot notaurl", domain.Entity{Type: domain.EntityMention, Length: 9}, urlEntity(10, 7))

	h.engine.Handle(ctx, msg)

	entry := h.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "act-1", entry.Data["activation_id"])
	assert.Equal(t, "attribution", entry.Data["component"])
}

func TestEngine_LateOlderMessageDoesNotDisplaceNewer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Delivered out of order: 6 (another user's chatter) before 5 (a link).
	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(6, 8, "unrelated chatter")))
	assert.Equal(t, OutcomeIgnored, h.engine.Handle(ctx, groupText(5, 7, "vimeo.com/5", urlEntity(0, 11))))
	h.clock.Advance(time.Second)

	assert.Equal(t, OutcomePrompted, h.engine.Handle(ctx, mentionBot(7, 7)))
	assert.Empty(t, h.rooms.Added())
}
