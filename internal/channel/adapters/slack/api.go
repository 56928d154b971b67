package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/media"
)

const (
	defaultBaseURL     = "https://slack.com/api"
	maxHistoryAttempts = 3
)

// APIError is a Web API response with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	HTTP     *http.Client
	BaseURL  string
	BotToken string
	AppToken string
	// SendRate caps chat.postMessage calls per second. Zero disables the cap.
	SendRate float64
	Files    *media.Fetcher
}

// Client is a minimal Slack Web API client covering what the bot uses.
type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
	limiter  *rate.Limiter
	files    *media.Fetcher
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	files := opts.Files
	if files == nil {
		files = media.NewFetcher(httpClient, 0, 0)
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(opts.BotToken),
		appToken: strings.TrimSpace(opts.AppToken),
		limiter:  rate.NewLimiter(limit, 1),
		files:    files,
	}
}

type authTestResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	User   string `json:"user,omitempty"`
}

// AuthTest resolves the identity behind the bot token.
func (c *Client) AuthTest(ctx context.Context) (channel.Identity, error) {
	var out authTestResponse
	if err := c.call(ctx, c.botToken, "auth.test", nil, &out); err != nil {
		return channel.Identity{}, err
	}
	if !out.OK {
		return channel.Identity{}, apiError("auth.test", out.Error)
	}
	return channel.Identity{
		UserID: strings.TrimSpace(out.UserID),
		BotID:  strings.TrimSpace(out.BotID),
		TeamID: strings.TrimSpace(out.TeamID),
		Name:   strings.TrimSpace(out.User),
	}, nil
}

type openConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

// OpenSocketURL requests a Socket Mode websocket URL with the app-level token.
func (c *Client) OpenSocketURL(ctx context.Context) (string, error) {
	var out openConnectionResponse
	if err := c.call(ctx, c.appToken, "apps.connections.open", nil, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", apiError("apps.connections.open", out.Error)
	}
	u := strings.TrimSpace(out.URL)
	if u == "" {
		return "", fmt.Errorf("slack apps.connections.open returned empty url")
	}
	return u, nil
}

func (c *Client) connectSocket(ctx context.Context) (*websocket.Conn, error) {
	u, err := c.OpenSocketURL(ctx)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type historyResponse struct {
	OK               bool          `json:"ok"`
	Error            string        `json:"error,omitempty"`
	Messages         []wireMessage `json:"messages"`
	HasMore          bool          `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// History reads one page of conversations.history, newest first. Rate limited
// and 5xx responses are retried a few times before giving up.
func (c *Client) History(ctx context.Context, q channel.HistoryQuery) (channel.HistoryPage, error) {
	form := url.Values{}
	form.Set("channel", q.Channel)
	if q.Limit > 0 {
		form.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		form.Set("cursor", q.Cursor)
	}
	if q.Latest != "" {
		form.Set("latest", q.Latest)
	}
	if q.Inclusive {
		form.Set("inclusive", "true")
	}

	var lastErr error
	for attempt := 1; attempt <= maxHistoryAttempts; attempt++ {
		raw, status, headers, err := c.postForm(ctx, c.botToken, "conversations.history", form)
		if err == nil && status >= 200 && status < 300 {
			var out historyResponse
			if err := json.Unmarshal(raw, &out); err != nil {
				return channel.HistoryPage{}, fmt.Errorf("decode conversations.history: %w", err)
			}
			if !out.OK {
				return channel.HistoryPage{}, apiError("conversations.history", out.Error)
			}
			page := channel.HistoryPage{Messages: make([]channel.RawMessage, 0, len(out.Messages))}
			for _, m := range out.Messages {
				page.Messages = append(page.Messages, m.raw())
			}
			if out.HasMore {
				page.NextCursor = strings.TrimSpace(out.ResponseMetadata.NextCursor)
			}
			return page, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("slack conversations.history http %d", status)
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable || attempt == maxHistoryAttempts {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return channel.HistoryPage{}, err
		}
	}
	return channel.HistoryPage{}, lastErr
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	Mrkdwn  bool   `json:"mrkdwn"`
}

type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

// PostMessage posts text to a channel and returns the assigned timestamp.
// It is attempted once.
func (c *Client) PostMessage(ctx context.Context, channelID, text string, mrkdwn bool) (channel.SentMessage, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return channel.SentMessage{}, fmt.Errorf("channel_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return channel.SentMessage{}, fmt.Errorf("text is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return channel.SentMessage{}, err
	}
	var out postMessageResponse
	if err := c.call(ctx, c.botToken, "chat.postMessage", postMessageRequest{Channel: channelID, Text: text, Mrkdwn: mrkdwn}, &out); err != nil {
		return channel.SentMessage{}, err
	}
	if !out.OK {
		return channel.SentMessage{}, apiError("chat.postMessage", out.Error)
	}
	sent := channel.SentMessage{Channel: strings.TrimSpace(out.Channel), TS: strings.TrimSpace(out.TS)}
	if sent.Channel == "" {
		sent.Channel = channelID
	}
	if sent.TS == "" {
		return channel.SentMessage{}, fmt.Errorf("slack chat.postMessage returned empty ts")
	}
	return sent, nil
}

// FetchFile downloads a private file URL with the bot token.
func (c *Client) FetchFile(ctx context.Context, fileURL string) ([]byte, string, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.botToken)
	return c.files.FetchImage(ctx, fileURL, header)
}

func (c *Client) call(ctx context.Context, token, method string, payload, out any) error {
	raw, status, _, err := c.postAuthJSON(ctx, token, method, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("slack %s http %d", method, status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

func (c *Client) postAuthJSON(ctx context.Context, token, method string, payload any) ([]byte, int, http.Header, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, token, method, body, "application/json; charset=utf-8")
}

func (c *Client) postForm(ctx context.Context, token, method string, form url.Values) ([]byte, int, http.Header, error) {
	return c.do(ctx, token, method, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) do(ctx context.Context, token, method string, body io.Reader, contentType string) ([]byte, int, http.Header, error) {
	if c == nil || c.http == nil {
		return nil, 0, nil, fmt.Errorf("slack client is not initialized")
	}
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required for %s", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}

func apiError(method, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		code = "unknown_error"
	}
	return &APIError{Method: method, Code: code}
}

// IsAPIError reports whether err is a Slack ok=false response with the given code.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		secs, err := strconv.Atoi(strings.TrimSpace(headers.Get("Retry-After")))
		if err != nil || secs <= 0 {
			return time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		return time.Duration(attempt) * 500 * time.Millisecond, true
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
