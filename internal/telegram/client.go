// Package telegram implements the bot surface: a thin Bot API client,
// the long-polling update listener that feeds chat signals into the
// lifecycle engine, and the operator command handlers.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultAPIURL is the public Bot API host.
const defaultAPIURL = "https://api.telegram.org"

// maxResponseBytes bounds how much of an API response is read.
const maxResponseBytes = 1 << 20

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	// Token is the bot token issued by BotFather.
	Token string
	// APIURL overrides the Bot API base URL, for tests and proxies.
	// Defaults to the public API.
	APIURL string
}

// Client is a minimal Telegram Bot API client covering the methods the
// bot uses: getMe, getUpdates long-polling, and sendMessage.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given bot token.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &Client{
		token:   cfg.Token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// User is a Telegram account, bot or human.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message is one incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
}

// Update is one getUpdates result entry. Only message updates carry a
// non-nil Message; the bot ignores everything else.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// apiResponse is the Bot API envelope around every method result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// GetMe fetches the bot's own account, verifying the token works.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return User{}, err
	}
	return me, nil
}

// GetUpdates long-polls for updates after the given offset. The timeout
// is the server-side hold duration and must stay under the HTTP client
// timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(timeout / time.Second),
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts Markdown-formatted text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, 0)
}

// SendReply posts Markdown-formatted text as a reply to an earlier
// message in the chat.
func (c *Client) SendReply(ctx context.Context, chatID, replyTo int64, text string) error {
	return c.send(ctx, chatID, text, replyTo)
}

func (c *Client) send(ctx context.Context, chatID int64, text string, replyTo int64) error {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if replyTo != 0 {
		params["reply_to_message_id"] = replyTo
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// call posts one Bot API method and decodes the enveloped result into
// out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: %s: marshal params: %w", method, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("telegram: %s: create request: %w", method, err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("telegram: %s: read response: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}
