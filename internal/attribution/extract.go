package attribution

import (
	"unicode/utf16"

	"w2gbot/internal/domain"
)

// ExtractURL returns the URL a message carries in its entities, or "" when
// there is none. The first url entity wins; failing that, the first text_link
// entity's attached URL. Free text outside entity spans is never inspected.
func ExtractURL(text string, entities []domain.Entity) string {
	for _, e := range entities {
		if e.Type != domain.EntityURL {
			continue
		}
		if s := sliceUTF16(text, e.Offset, e.Length); s != "" {
			return s
		}
	}
	for _, e := range entities {
		if e.Type == domain.EntityTextLink && e.URL != "" {
			return e.URL
		}
	}
	return ""
}

// sliceUTF16 returns the substring of s at a span measured in UTF-16 code
// units, the unit Telegram uses for entity offsets. Out-of-range spans yield "".
func sliceUTF16(s string, offset, length int) string {
	if offset < 0 || length <= 0 || s == "" {
		return ""
	}
	units := utf16.Encode([]rune(s))
	end := offset + length
	if end > len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset:end]))
}
