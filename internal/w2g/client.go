// Package w2g is a client for the Watch2Gether room API.
package w2g

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"w2gbot/internal/scraper"
)

// ErrMissingStreamKey is returned when room creation succeeds at the HTTP
// level but the response carries no stream key.
var ErrMissingStreamKey = errors.New("w2g: response has no streamkey")

// APIError is a non-2xx response from the W2G API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("w2g %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string // e.g. https://api.w2g.tv
	RoomURL string // e.g. https://w2g.tv/rooms

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// BgColor and BgOpacity style newly created rooms.
	BgColor   string
	BgOpacity string
}

// Client talks to the W2G API.
type Client struct {
	opts       Options
	httpClient *http.Client
	meta       scraper.Resolver
	log        logrus.FieldLogger
}

// NewClient creates a Client. meta may be nil, in which case playlist items
// are added without a title.
func NewClient(opts Options, meta scraper.Resolver, logger logrus.FieldLogger) *Client {
	if opts.BgColor == "" {
		opts.BgColor = "#000000"
	}
	if opts.BgOpacity == "" {
		opts.BgOpacity = "50"
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		meta:       meta,
		log:        logger.WithField("component", "w2g"),
	}
}

// RoomURL returns the user-facing link for a room key.
func (c *Client) RoomURL(key string) string {
	return strings.TrimRight(c.opts.RoomURL, "/") + "/" + url.PathEscape(key)
}

type createRoomRequest struct {
	APIKey    string `json:"w2g_api_key"`
	Share     string `json:"share,omitempty"`
	BgColor   string `json:"bg_color"`
	BgOpacity string `json:"bg_opacity"`
}

type createRoomResponse struct {
	StreamKey string `json:"streamkey"`
}

// CreateRoom creates a room, optionally preloaded with initialURL, and
// returns its stream key.
func (c *Client) CreateRoom(ctx context.Context, initialURL string) (string, error) {
	var resp createRoomResponse
	err := c.post(ctx, "create room", "/rooms/create.json", createRoomRequest{
		APIKey:    c.opts.APIKey,
		Share:     initialURL,
		BgColor:   c.opts.BgColor,
		BgOpacity: c.opts.BgOpacity,
	}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.StreamKey) == "" {
		return "", ErrMissingStreamKey
	}
	c.log.WithField("room_key", resp.StreamKey).Info("Room created")
	return resp.StreamKey, nil
}

type playlistItem struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Thumb string `json:"thumb,omitempty"`
}

type playlistUpdateRequest struct {
	APIKey   string         `json:"w2g_api_key"`
	AddItems []playlistItem `json:"add_items"`
}

// AddToPlaylist appends itemURL to the room's current playlist. When title is
// empty the metadata resolver is consulted; lookup failures only drop the
// title and never fail the call.
func (c *Client) AddToPlaylist(ctx context.Context, roomKey, itemURL, title string) error {
	item := playlistItem{URL: itemURL, Title: title}
	if item.Title == "" && c.meta != nil {
		meta, err := c.meta.Resolve(ctx, itemURL)
		if err != nil {
			c.log.WithError(err).WithField("url", itemURL).Debug("No metadata, adding without title")
		} else {
			item.Title = meta.Title
			item.Thumb = meta.Thumbnail
		}
	}

	path := "/rooms/" + url.PathEscape(roomKey) + "/playlists/current/playlist_items/sync_update"
	err := c.post(ctx, "add to playlist", path, playlistUpdateRequest{
		APIKey:   c.opts.APIKey,
		AddItems: []playlistItem{item},
	}, nil)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"room_key": roomKey, "url": itemURL}).Info("Added to playlist")
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("w2g %s: failed to marshal request: %w", op, err)
	}

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("w2g %s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("w2g %s: failed to send request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("w2g %s: failed to decode response: %w", op, err)
	}
	return nil
}
