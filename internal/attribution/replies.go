package attribution

import "fmt"

// User-visible reply texts.
const (
	ReplyInvalidURL = "That doesn't look like a valid link. Send a full http(s) URL, e.g. https://youtu.be/dQw4w9WgXcQ"
	ReplyPrompt     = "Send me a link and I'll add it to the room. Reply to this message or just post it here."
	ReplyFailure    = "Couldn't reach Watch2Gether right now. Please try again in a moment."
)

// AddedReply is the success notice.
func AddedReply(roomLink string) string {
	return fmt.Sprintf("Added ✅\nRoom: %s", roomLink)
}
