package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// TelegramSender is the messaging transport the dispatcher fans out to. The
// wire protocol behind it is an opaque external service.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	PinMessage(ctx context.Context, chatID, messageID int64) error
	UnpinMessage(ctx context.Context, chatID, messageID int64) error
}

// TelegramClient talks to the Telegram Bot API over plain HTTP.
type TelegramClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewTelegramClient() *TelegramClient {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is required for broadcast delivery")
	}
	baseURL := os.Getenv("TELEGRAM_API_URL")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *TelegramClient) call(ctx context.Context, method string, body interface{}) (*telegramResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("telegram %s returned status %d: %s", method, resp.StatusCode, string(raw))
	}
	if !tr.OK {
		return nil, fmt.Errorf("telegram %s failed: %s", method, tr.Description)
	}
	return &tr, nil
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	tr, err := c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return 0, err
	}
	return tr.Result.MessageID, nil
}

func (c *TelegramClient) PinMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "pinChatMessage", map[string]interface{}{
		"chat_id":              chatID,
		"message_id":           messageID,
		"disable_notification": true,
	})
	return err
}

func (c *TelegramClient) UnpinMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "unpinChatMessage", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}
