package attribution

import (
	"sync"
	"time"

	"w2gbot/internal/domain"
)

// Snapshot is what the engine remembers about a message: who sent it, when it
// was seen and the URL extracted from it at ingestion. The text itself is
// dropped.
type Snapshot struct {
	ChatID    domain.ChatID
	FromID    domain.UserID
	MessageID domain.MessageID
	At        time.Time
	URL       string
}

// NewSnapshot runs URL extraction over msg. It is the only place a message's
// text is read for attribution.
func NewSnapshot(msg domain.Message, at time.Time) Snapshot {
	return Snapshot{
		ChatID:    msg.ChatID,
		FromID:    msg.FromID,
		MessageID: msg.ID,
		At:        at,
		URL:       ExtractURL(msg.Text, msg.Entities),
	}
}

// ChatState is the soft session context of one chat. Methods must be called
// with the state acquired through Store.Acquire.
type ChatState struct {
	mu sync.Mutex

	promptDeadline time.Time // zero when no invitation is open
	last           *Snapshot
	newest         domain.MessageID // highest id ever remembered
	used           *usedSet
}

// OpenPrompt opens (or re-opens) the invitation window until now+grace.
func (s *ChatState) OpenPrompt(now time.Time, grace time.Duration) {
	s.promptDeadline = now.Add(grace)
}

// ConsumePrompt reports whether an invitation window is open at now, and
// closes it either way.
func (s *ChatState) ConsumePrompt(now time.Time) bool {
	if s.promptDeadline.IsZero() {
		return false
	}
	open := now.Before(s.promptDeadline)
	s.promptDeadline = time.Time{}
	return open
}

// PromptOpen reports whether an invitation window is open at now without
// consuming it.
func (s *ChatState) PromptOpen(now time.Time) bool {
	return !s.promptDeadline.IsZero() && now.Before(s.promptDeadline)
}

// Remember replaces the last-message slot. A snapshot older than one already
// remembered is dropped, so late delivery cannot move the slot backwards.
func (s *ChatState) Remember(snap Snapshot) {
	if snap.MessageID < s.newest {
		return
	}
	s.newest = snap.MessageID
	s.last = &snap
}

// Recall returns the remembered snapshot while it is strictly younger than
// window.
func (s *ChatState) Recall(now time.Time, window time.Duration) (Snapshot, bool) {
	if s.last == nil || now.Sub(s.last.At) >= window {
		return Snapshot{}, false
	}
	return *s.last, true
}

// Forget clears the last-message slot if it holds id.
func (s *ChatState) Forget(id domain.MessageID) {
	if s.last != nil && s.last.MessageID == id {
		s.last = nil
	}
}

// MarkUsed records ids as consumed by an attribution.
func (s *ChatState) MarkUsed(ids ...domain.MessageID) {
	for _, id := range ids {
		s.used.Add(id)
	}
}

// IsUsed reports whether id was consumed within the retention horizon.
func (s *ChatState) IsUsed(id domain.MessageID) bool {
	return s.used.Has(id)
}

// Store holds one ChatState per chat. States are created on first access and
// live for the life of the process; each is bounded to one snapshot, one
// deadline and a fixed number of used ids.
type Store struct {
	mu           sync.Mutex
	chats        map[domain.ChatID]*ChatState
	usedCapacity int
}

// NewStore creates a Store whose anti-replay sets hold usedCapacity ids.
func NewStore(usedCapacity int) *Store {
	return &Store{
		chats:        make(map[domain.ChatID]*ChatState),
		usedCapacity: usedCapacity,
	}
}

// Acquire returns the chat's state locked for exclusive use, and the function
// that releases it. Activations for the same chat are serialized here; other
// chats proceed in parallel.
func (s *Store) Acquire(chatID domain.ChatID) (*ChatState, func()) {
	s.mu.Lock()
	st, ok := s.chats[chatID]
	if !ok {
		st = &ChatState{used: newUsedSet(s.usedCapacity)}
		s.chats[chatID] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	return st, st.mu.Unlock
}

// Len returns the number of chats seen so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}
