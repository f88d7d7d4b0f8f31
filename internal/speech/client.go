package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/cache"
	"github.com/tidwall/gjson"
)

// MaxClipSize bounds the size of a downloaded clip.
const MaxClipSize = 32 << 20

// ErrEmptyClip is returned when the proxy answers with no audio.
var ErrEmptyClip = errors.New("speech proxy returned an empty clip")

// StatusError is returned for non-2xx proxy responses.
type StatusError struct {
	StatusCode int
	Message    string // The proxy's {"error": ...} text, if any
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("speech proxy: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("speech proxy: HTTP %d", e.StatusCode)
}

// Client downloads clips from the speech proxy.
type Client struct {
	endpoint string
	http     *http.Client
	cache    *cache.Store
	logger   *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCache keeps downloaded clips in store.
func WithCache(store *cache.Store) ClientOption {
	return func(c *Client) {
		c.cache = store
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// NewClient creates a client for the proxy endpoint, e.g.
// http://localhost:3000/aiVoice.
func NewClient(endpoint string, options ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   log.Default().WithPrefix("speech"),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Endpoint returns the proxy endpoint clip URLs are resolved against.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Resolve returns the clip URL for text.
func (c *Client) Resolve(text string) (string, error) {
	u, err := ResolveAudioURL(text, c.endpoint)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Fetch downloads the clip at url with a GET request.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := cache.Key(http.MethodGet, url)
	if data, level, ok := c.cache.Get(key); ok {
		c.logger.Debug("Clip cache hit", "level", level, "bytes", len(data))
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(key, data); err != nil {
		c.logger.Warn("Could not cache clip", "err", err)
	}
	return data, nil
}

// Synthesize requests a clip for text with a POST request.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cache.Key(http.MethodGet, c.cacheURL(text))
	if data, _, ok := c.cache.Get(key); ok {
		return data, nil
	}

	body, err := json.Marshal(map[string]string{TextParam: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	// GET and POST yield the same clip, share the entry.
	if err := c.cache.Put(key, data); err != nil {
		c.logger.Warn("Could not cache clip", "err", err)
	}
	return data, nil
}

func (c *Client) cacheURL(text string) string {
	u, err := c.Resolve(text)
	if err != nil {
		return c.endpoint + "\x00" + text
	}
	return u
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech proxy: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxClipSize))
	if err != nil {
		return nil, fmt.Errorf("unable to read clip: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			serr.Message = gjson.GetBytes(data, "error").String()
		}
		return nil, serr
	}

	if len(data) == 0 {
		return nil, ErrEmptyClip
	}

	c.logger.Debug("Downloaded clip", "method", req.Method, "bytes", len(data), "took", time.Since(start))
	return data, nil
}
