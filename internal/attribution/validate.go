package attribution

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"
)

// Validated is a Candidate after normalization. Exactly one holds: URL is set
// (usable), Invalid is true (something was offered but is malformed), or
// neither (nothing usable was offered).
type Validated struct {
	Candidate
	URL     string
	Invalid bool
}

// Usable reports whether the candidate produced a web URL.
func (v Validated) Usable() bool { return v.URL != "" }

var (
	hostValidator = validator.New()

	// schemePrefix matches "scheme:" at the start. "example.com:8080" and
	// "localhost:3000" are told apart from real schemes in hasScheme.
	schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):(.*)$`)

	youTubeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Validate normalizes a candidate. A missing scheme defaults to https.
// Non-web schemes are treated as absent rather than invalid.
func Validate(c Candidate) Validated {
	out := Validated{Candidate: c}
	raw := strings.TrimSpace(c.Raw)
	if raw == "" {
		return out
	}
	if !hasScheme(raw) {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		out.Invalid = true
		return out
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return out
	}
	if !validHost(u.Hostname()) {
		out.Invalid = true
		return out
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	if yt, ok := canonicalYouTube(u); ok {
		out.URL = yt
		return out
	}
	out.URL = u.String()
	return out
}

func hasScheme(raw string) bool {
	m := schemePrefix.FindStringSubmatch(raw)
	if m == nil {
		return false
	}
	if strings.HasPrefix(m[2], "//") {
		return true
	}
	// host:port, not a scheme
	if strings.Contains(m[1], ".") || (m[2] != "" && m[2][0] >= '0' && m[2][0] <= '9') {
		return false
	}
	return true
}

func validHost(host string) bool {
	if host == "" {
		return false
	}
	ascii, err := idna.ToASCII(host)
	if err != nil {
		return false
	}
	return hostValidator.Var(ascii, "fqdn|ip") == nil
}

// canonicalYouTube rewrites the YouTube URL forms to
// https://www.youtube.com/watch?v=ID, keeping a start offset if present.
func canonicalYouTube(u *url.URL) (string, bool) {
	host := strings.TrimPrefix(u.Hostname(), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"),
			strings.HasPrefix(u.Path, "/embed/"),
			strings.HasPrefix(u.Path, "/live/"),
			strings.HasPrefix(u.Path, "/v/"):
			id = firstSegment(u.Path[strings.Index(u.Path[1:], "/")+1:])
		}
	default:
		return "", false
	}
	if !youTubeID.MatchString(id) {
		return "", false
	}

	canonical := "https://www.youtube.com/watch?v=" + id
	if t := u.Query().Get("t"); t != "" {
		canonical += "&t=" + url.QueryEscape(t)
	}
	return canonical, true
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
