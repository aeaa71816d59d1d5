package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	_maxBodySize    = 4 * 1024 * 1024 // 4 MB
	_defaultTimeout = 5 * time.Second
	_userAgent      = "bluctl/1.0"
)

// Client issues control requests against a single streamer
type Client struct {
	logger  *zap.Logger
	player  domain.PlayerIdentity
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client bound to one player.
// The http.Client carries no global timeout: every request gets its own deadline
// so that long-poll calls can outlive the short default.
func NewClient(logger *zap.Logger, player domain.PlayerIdentity, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = _defaultTimeout
	}
	return &Client{
		logger:  logger.With(zap.String("player", player.Name())),
		player:  player,
		baseURL: "http://" + player.Address(),
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Player returns the identity this client talks to
func (c *Client) Player() domain.PlayerIdentity {
	return c.player
}

// Get performs a GET request and returns the raw body
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.get(ctx, path, params, c.timeout)
}

// Do performs a GET against a device-supplied path such as a playURL or actionURL
func (c *Client) Do(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse action %q: %w", domain.ErrTransport, raw, err)
	}
	return c.Get(ctx, u.Path, u.Query())
}

func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrTransport, err)
	}
	req.Header.Set("User-Agent", _userAgent)

	c.logger.Debug("Sending request", zap.String("url", full))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status code: %d", domain.ErrTransport, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, _maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", domain.ErrTransport, path, err)
	}

	c.logger.Debug("Response received",
		zap.String("path", path),
		zap.Int("bytes", len(body)))
	return body, nil
}

// StatusOptions selects the long-poll variant of /Status
type StatusOptions struct {
	// Timeout asks the device to hold the request until something changes or Timeout elapses
	Timeout time.Duration
	// ETag is the sync token of the last snapshot the caller has seen
	ETag string
}

// Status fetches and decodes the current player status
func (c *Client) Status(ctx context.Context, opts StatusOptions) (domain.PlayerStatus, error) {
	params := url.Values{}
	timeout := c.timeout
	if opts.Timeout > 0 {
		params.Set("timeout", strconv.Itoa(int(opts.Timeout/time.Second)))
		timeout += opts.Timeout
	}
	if opts.ETag != "" {
		params.Set("etag", opts.ETag)
	}

	body, err := c.get(ctx, "/Status", params, timeout)
	if err != nil {
		return domain.PlayerStatus{}, err
	}
	status, err := DecodeStatus(body)
	if err != nil {
		return domain.PlayerStatus{}, err
	}
	status.ImageURL = c.AbsoluteURL(status.ImageURL)
	return status, nil
}

// AbsoluteURL resolves a device-relative path such as /Artwork?... against the player
func (c *Client) AbsoluteURL(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return c.baseURL + ref
	}
	return ref
}

// SyncStatus fetches the device's identity information
func (c *Client) SyncStatus(ctx context.Context) (SyncInfo, error) {
	body, err := c.Get(ctx, "/SyncStatus", nil)
	if err != nil {
		return SyncInfo{}, err
	}
	return DecodeSyncStatus(body)
}

// Playlist fetches the play queue. A non-positive end fetches the whole queue.
func (c *Client) Playlist(ctx context.Context, start, end int) (domain.Playlist, error) {
	params := url.Values{}
	if end > 0 {
		params.Set("start", strconv.Itoa(start))
		params.Set("end", strconv.Itoa(end))
	}
	body, err := c.Get(ctx, "/Playlist", params)
	if err != nil {
		return domain.Playlist{}, err
	}
	return DecodePlaylist(body)
}

// Browse fetches one browse page. An empty key lists the top-level sources.
func (c *Client) Browse(ctx context.Context, key, query string) (domain.BrowsePage, error) {
	params := url.Values{}
	if key != "" {
		params.Set("key", key)
	}
	if query != "" {
		params.Set("q", query)
	}
	body, err := c.Get(ctx, "/Browse", params)
	if err != nil {
		return domain.BrowsePage{}, err
	}
	return DecodeBrowse(body)
}

// SetVolume sets the volume level in percent
func (c *Client) SetVolume(ctx context.Context, level int) error {
	_, err := c.Get(ctx, "/Volume", url.Values{"level": {strconv.Itoa(level)}})
	return err
}

// TogglePause toggles between play and pause
func (c *Client) TogglePause(ctx context.Context) error {
	_, err := c.Get(ctx, "/Pause", url.Values{"toggle": {"1"}})
	return err
}

// Skip moves to the next track
func (c *Client) Skip(ctx context.Context) error {
	_, err := c.Get(ctx, "/Skip", nil)
	return err
}

// Back moves to the previous track
func (c *Client) Back(ctx context.Context) error {
	_, err := c.Get(ctx, "/Back", nil)
	return err
}

// AddFavourite adds an album of a streaming service to the favourites
func (c *Client) AddFavourite(ctx context.Context, albumID, service string) error {
	_, err := c.Get(ctx, "/AddFavourite", url.Values{"albumid": {albumID}, "service": {service}})
	return err
}

// Save stores the play queue as a named playlist and returns the number of entries saved
func (c *Client) Save(ctx context.Context, name string) (int, error) {
	body, err := c.Get(ctx, "/Save", url.Values{"name": {name}})
	if err != nil {
		return 0, err
	}
	return DecodeSaveEntries(body)
}

// Delete removes a saved playlist
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.Get(ctx, "/Delete", url.Values{"name": {name}})
	return err
}
