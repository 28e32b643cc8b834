package helper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const telegramAPI = "https://api.telegram.org"

type TelegramSender struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
}

func NewTelegramSender(botToken, chatID string) *TelegramSender {
	return &TelegramSender{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  telegramAPI,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether both the token and the chat are configured.
func (s *TelegramSender) Enabled() bool {
	return s.BotToken != "" && s.ChatID != ""
}

func (s *TelegramSender) Send(ctx context.Context, message string) error {
	if !s.Enabled() {
		return nil // Notification disabled
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.APIBase, s.BotToken)

	payload := map[string]string{
		"chat_id": s.ChatID,
		"text":    message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
