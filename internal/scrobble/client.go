package scrobble

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Last.fm web service root
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultUserAgent identifies Fermata to the API
	DefaultUserAgent = "Fermata/0.3.0 (https://github.com/fermata-audio/fermata)"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit - Last.fm asks for no more than 5 requests per second
	DefaultRateLimit = 5
)

// Client is a minimal Last.fm API client covering authentication,
// now-playing notifications, scrobbles and album art lookup.
type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a Last.fm API client with the given application credentials.
func NewClient(apiKey, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		secret:    secret,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newRateLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Sign computes the Last.fm method signature for a parameter set: the keys are
// sorted, each key is concatenated with its value, the shared secret is
// appended and the whole string is MD5-hashed. The "format" parameter is
// excluded from signing per the protocol.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params[k])
	}
	sb.WriteString(secret)

	return fmt.Sprintf("%x", md5.Sum([]byte(sb.String())))
}

// lastfmError mirrors the API error envelope.
type lastfmError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// isAuthCode reports whether a Last.fm error code means the user's
// credentials or session are bad, as opposed to a service-side failure.
// 4 = authentication failed, 9 = invalid session key, 14 = unauthorized token.
func isAuthCode(code int) bool {
	switch code {
	case 4, 9, 14:
		return true
	}
	return false
}

// MobileSession authenticates with a username and password and returns the
// session key to store for later signed calls. A *AuthError is returned when
// Last.fm rejects the credentials; any other error indicates the request
// never got a usable answer.
func (c *Client) MobileSession(ctx context.Context, username, password string) (*Session, error) {
	// authToken = md5(lowercase(username) + md5(password))
	passHash := fmt.Sprintf("%x", md5.Sum([]byte(password)))
	authToken := fmt.Sprintf("%x", md5.Sum([]byte(strings.ToLower(username)+passHash)))

	params := map[string]string{
		"method":    "auth.getMobileSession",
		"username":  username,
		"authToken": authToken,
		"api_key":   c.apiKey,
	}

	body, err := c.postSigned(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Session struct {
			Name       string `json:"name"`
			Key        string `json:"key"`
			Subscriber int    `json:"subscriber"`
		} `json:"session"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse session response: %w", err)
	}
	if resp.Session.Key == "" {
		return nil, fmt.Errorf("empty session key in response")
	}

	log.Info().Str("username", resp.Session.Name).Msg("Last.fm session established")

	return &Session{
		Username:   resp.Session.Name,
		Key:        resp.Session.Key,
		Subscriber: resp.Session.Subscriber == 1,
	}, nil
}

// UpdateNowPlaying notifies Last.fm of the track that just started.
func (c *Client) UpdateNowPlaying(ctx context.Context, sessionKey string, np NowPlaying) error {
	if sessionKey == "" {
		return ErrNotAuthenticated
	}

	params := map[string]string{
		"method":  "track.updateNowPlaying",
		"artist":  np.Artist,
		"track":   np.Track,
		"api_key": c.apiKey,
		"sk":      sessionKey,
	}
	if np.Album != "" {
		params["album"] = np.Album
	}
	if np.DurationMs > 0 {
		params["duration"] = strconv.Itoa(np.DurationMs / 1000)
	}

	_, err := c.postSigned(ctx, params)
	return err
}

// Scrobble submits a completed listen.
func (c *Client) Scrobble(ctx context.Context, sessionKey string, sub Submission) error {
	if sessionKey == "" {
		return ErrNotAuthenticated
	}

	params := map[string]string{
		"method":    "track.scrobble",
		"artist":    sub.Artist,
		"track":     sub.Track,
		"timestamp": strconv.FormatInt(sub.StartedAt, 10),
		"api_key":   c.apiKey,
		"sk":        sessionKey,
	}
	if sub.Album != "" {
		params["album"] = sub.Album
	}
	if sub.DurationMs > 0 {
		params["duration"] = strconv.Itoa(sub.DurationMs / 1000)
	}

	_, err := c.postSigned(ctx, params)
	return err
}

// imageSizeRank orders the image sizes Last.fm returns; higher is larger.
var imageSizeRank = map[string]int{
	"mega":       5,
	"extralarge": 4,
	"large":      3,
	"medium":     2,
	"small":      1,
}

// AlbumArtURL looks up album art via album.getInfo and returns the URL of the
// largest available image. This endpoint does not require signing.
func (c *Client) AlbumArtURL(ctx context.Context, artist, album string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("method", "album.getinfo")
	q.Set("artist", artist)
	q.Set("album", album)
	q.Set("api_key", c.apiKey)
	q.Set("autocorrect", "1")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Success
	case http.StatusNotFound:
		return "", ErrArtworkNotFound
	case http.StatusTooManyRequests:
		log.Warn().Str("album", album).Msg("Last.fm rate limit exceeded")
		return "", ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return "", ErrTemporaryFailure
	default:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var info struct {
		Album struct {
			Image []struct {
				URL  string `json:"#text"`
				Size string `json:"size"`
			} `json:"image"`
		} `json:"album"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	best := ""
	bestRank := 0
	for _, img := range info.Album.Image {
		if img.URL == "" {
			continue
		}
		if r := imageSizeRank[img.Size]; r > bestRank {
			best = img.URL
			bestRank = r
		}
	}

	if best == "" {
		log.Debug().Str("artist", artist).Str("album", album).Msg("No album art on Last.fm")
		return "", ErrArtworkNotFound
	}

	return best, nil
}

// postSigned signs params, POSTs them as a form and decodes the error
// envelope. The raw body is returned on success.
func (c *Client) postSigned(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params["api_sig"] = Sign(params, c.secret)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Application-level errors arrive with assorted HTTP statuses; the JSON
	// envelope is authoritative.
	var apiErr lastfmError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != 0 {
		if isAuthCode(apiErr.Error) {
			return nil, &AuthError{Code: apiErr.Error, Message: apiErr.Message}
		}
		return nil, &APIError{Code: apiErr.Error, Message: apiErr.Message}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, ErrTemporaryFailure
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// rateLimiter implements a simple token bucket rate limiter
type rateLimiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastRequest time.Time
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	interval := time.Second / time.Duration(requestsPerSecond)
	return &rateLimiter{
		interval: interval,
	}
}

// Wait blocks until a request can be made
func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	nextAllowed := r.lastRequest.Add(r.interval)

	if now.Before(nextAllowed) {
		waitTime := nextAllowed.Sub(now)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.lastRequest = time.Now()
	return nil
}
