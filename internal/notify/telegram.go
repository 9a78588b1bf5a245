package notify

import (
	"context"
	"fmt"

	"github.com/rehan1020/tgbot/internal/telegram"
)

// TelegramSender delivers notifications to the operator chat through the
// bot's own API client.
type TelegramSender struct {
	client *telegram.Client
	chatID int64
}

// NewTelegramSender creates a TelegramSender posting to the given chat.
func NewTelegramSender(client *telegram.Client, chatID int64) *TelegramSender {
	return &TelegramSender{client: client, chatID: chatID}
}

// Send posts the notification with the title bolded, Markdown style.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := fmt.Sprintf("*%s*\n%s", title, message)
	if err := t.client.SendMessage(ctx, t.chatID, text); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
