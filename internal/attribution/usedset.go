package attribution

import "w2gbot/internal/domain"

// usedSet is a bounded set of message ids with insertion-order eviction: a
// fixed-capacity ring plus a membership map.
type usedSet struct {
	ring    []domain.MessageID
	next    int
	size    int
	members map[domain.MessageID]struct{}
}

func newUsedSet(capacity int) *usedSet {
	if capacity < 1 {
		capacity = 1
	}
	return &usedSet{
		ring:    make([]domain.MessageID, capacity),
		members: make(map[domain.MessageID]struct{}, capacity),
	}
}

// Add inserts id, evicting the oldest entry when full. Re-adding a present id
// does not refresh its position.
func (s *usedSet) Add(id domain.MessageID) {
	if _, ok := s.members[id]; ok {
		return
	}
	if s.size == len(s.ring) {
		delete(s.members, s.ring[s.next])
	} else {
		s.size++
	}
	s.ring[s.next] = id
	s.members[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}

func (s *usedSet) Has(id domain.MessageID) bool {
	_, ok := s.members[id]
	return ok
}

func (s *usedSet) Len() int { return s.size }
