package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultTelegramURL is the Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends receipt text to a chat through the Telegram Bot API.
type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		BaseURL: DefaultTelegramURL,
		Client:  http.DefaultClient,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify implements Notifier.
func (t *TelegramNotifier) Notify(ctx context.Context, r Receipt) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.ChatID, Text: FormatReceipt(r)})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return fmt.Errorf("telegram: send failed: %w", redactURL(err))
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, out.Description)
		}
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	return nil
}

func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
