package telegram

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

	cmdpkg "github.com/stupiduntilnot/tldrbot/internal/commander"
)

// Telegram rejects texts longer than 4096 characters.
const maxMessageChars = 4096

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// APIError is returned when Telegram answers with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed code=%d: %s", e.Method, e.Code, e.Description)
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message
type Chat = cmdpkg.Chat
type User = cmdpkg.User

// GetUpdates calls the getUpdates API.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request build failed: %w", err)
	}
	var updates []Update
	if err := c.do(req, "getUpdates", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends a text message to the given chat and returns the new
// message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    truncate(text, maxMessageChars),
	}
	var sent Message
	if err := c.post(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text of a message previously sent by the bot.
// Editing to identical text is not an error.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       truncate(text, maxMessageChars),
	}
	err := c.post(ctx, "editMessageText", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) post(ctx context.Context, method string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s marshal failed: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s request build failed: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return fmt.Errorf("failed to parse %s response status=%d: %w", method, resp.StatusCode, err)
	}
	if !tgResp.OK {
		return &APIError{Method: method, Code: tgResp.ErrorCode, Description: tgResp.Description}
	}
	if out == nil || len(tgResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(tgResp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
