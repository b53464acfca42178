package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel sends alerts through the Telegram bot sendMessage API.
type TelegramChannel struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
}

// NewTelegramChannel creates a Telegram bot channel. Returns nil when token
// or chat id is missing.
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	if token == "" || chatID == "" {
		return nil
	}
	return &TelegramChannel{
		baseURL:    telegramAPIBase,
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, alert Alert) error {
	var text strings.Builder
	fmt.Fprintf(&text, "<b>[%s] %s</b>\n%s", strings.ToUpper(string(alert.Severity)), alert.Title, alert.Message)
	for k, v := range alert.Details {
		fmt.Fprintf(&text, "\n%s: %s", k, v)
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    c.chatID,
		"text":       text.String(),
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
