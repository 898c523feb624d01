// Package bot is the Telegram front end: it relays user task descriptions
// to the compose service and renders the resulting workflow JSON back into
// the chat.
package bot

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
)

const telegramAPIBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:      strings.TrimSpace(token),
		baseURL:    telegramAPIBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// SendMessage posts a text message into a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	}
	if _, err := c.api(ctx, "sendMessage", payload); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// RegisterWebhook points the bot's webhook at webhookURL, protected by a
// secret token and dropping any updates queued while the service was down.
func (c *Client) RegisterWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{
		"url":                  strings.TrimSpace(webhookURL),
		"secret_token":         strings.TrimSpace(secret),
		"drop_pending_updates": true,
	}
	if _, err := c.api(ctx, "setWebhook", payload); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	payload := map[string]any{"drop_pending_updates": true}
	if _, err := c.api(ctx, "deleteWebhook", payload); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func (c *Client) api(ctx context.Context, method string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}

	var envelope struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(respBody, &envelope)

	if resp.StatusCode >= http.StatusBadRequest || !envelope.OK {
		description := strings.TrimSpace(envelope.Description)
		if description == "" {
			description = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, errors.New(description)
	}
	return respBody, nil
}

type update struct {
	UpdateID      int64   `json:"update_id"`
	Message       message `json:"message"`
	EditedMessage message `json:"edited_message"`
}

type message struct {
	ID   int64  `json:"message_id"`
	From user   `json:"from"`
	Chat chat   `json:"chat"`
	Text string `json:"text"`
}

type user struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

type chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}
