package attribution

import (
	"time"

	"w2gbot/internal/domain"
)

// Source is where a candidate URL came from.
type Source int

const (
	SourceNone Source = iota
	SourceCurrent
	SourceReply
	SourceRemembered
)

func (s Source) String() string {
	switch s {
	case SourceCurrent:
		return "current"
	case SourceReply:
		return "reply"
	case SourceRemembered:
		return "remembered"
	default:
		return "none"
	}
}

// Candidate is a not-yet-validated URL and the message it came from.
type Candidate struct {
	Raw             string
	SourceMessageID domain.MessageID
	Source          Source
}

// Resolve picks the URL a message refers to, by provenance:
//  1. the message itself;
//  2. the message it replies to, unless a bot wrote that one;
//  3. the remembered last message, only for mentions, from the same author,
//     within the recency window.
//
// Sources already consumed by an earlier attribution are skipped. The zero
// Candidate means nothing was found.
func Resolve(msg domain.Message, cur Snapshot, trig Trigger, st *ChatState, now time.Time, recency time.Duration) Candidate {
	if cur.URL != "" && !st.IsUsed(cur.MessageID) {
		return Candidate{Raw: cur.URL, SourceMessageID: cur.MessageID, Source: SourceCurrent}
	}

	if r := msg.ReplyTo; r != nil && !r.FromIsBot && !st.IsUsed(r.ID) {
		if u := ExtractURL(r.Text, r.Entities); u != "" {
			return Candidate{Raw: u, SourceMessageID: r.ID, Source: SourceReply}
		}
	}

	if trig == TriggerMention {
		last, ok := st.Recall(now, recency)
		if ok && last.URL != "" && last.FromID == cur.FromID &&
			last.MessageID != cur.MessageID && !st.IsUsed(last.MessageID) {
			return Candidate{Raw: last.URL, SourceMessageID: last.MessageID, Source: SourceRemembered}
		}
	}

	return Candidate{}
}
