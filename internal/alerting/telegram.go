package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier mirrors alert messages into an operator chat via the Bot API.
// The email recipient is included in the text since the chat is shared.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier creates a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Send posts the message through sendMessage.
func (n *TelegramNotifier) Send(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(to, subject, body),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: "telegram", To: to, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return &DeliveryError{Channel: "telegram", To: to, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: "telegram", To: to, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Channel: "telegram", To: to, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return &DeliveryError{Channel: "telegram", To: to, Err: fmt.Errorf("telegram returned ok=false")}
	}

	n.logger.Info().Str("to", to).Str("subject", subject).Msg("alert mirrored to telegram")
	return nil
}

func renderMessage(to, subject, body string) string {
	builder := strings.Builder{}
	builder.WriteString("[")
	builder.WriteString(subject)
	builder.WriteString("]\n")
	builder.WriteString(body)
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Recipient: %s", to))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
