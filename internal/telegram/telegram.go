// Package telegram dispatches notifications to the Telegram chats of
// interested accounts.
package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrAllTargetsFailed is returned when not a single target accepted the
// message. Partial failure is tolerated and only logged.
var ErrAllTargetsFailed = errors.New("all telegram targets failed")

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends messages through the Telegram bot API.
type Notifier struct {
	api telegramAPI
	log *slog.Logger
}

// New creates a Notifier with the given bot token.
func New(token string, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Notifier{api: api, log: log}, nil
}

// NewWithAPI creates a Notifier with a custom API implementation (useful for testing).
func NewWithAPI(api telegramAPI, log *slog.Logger) *Notifier {
	return &Notifier{api: api, log: log}
}

// SendToTargets delivers text to every chat independently. It succeeds when
// at least one send succeeds; it returns ErrAllTargetsFailed (wrapping the
// first cause) only when every send failed.
func (n *Notifier) SendToTargets(chatIDs []int64, text string) error {
	if len(chatIDs) == 0 {
		return fmt.Errorf("no targets configured: %w", ErrAllTargetsFailed)
	}

	var firstErr error
	failed := 0
	for i, chatID := range chatIDs {
		// Rate limit: ~20 messages/sec max for Telegram
		if i > 0 {
			time.Sleep(50 * time.Millisecond)
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			n.log.Error("send message", "chat_id", chatID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			failed++
		}
	}

	if failed == len(chatIDs) {
		return fmt.Errorf("%w (%d chats): %v", ErrAllTargetsFailed, failed, firstErr)
	}
	if failed > 0 {
		n.log.Warn("partial send failure", "failed", failed, "succeeded", len(chatIDs)-failed)
	}
	return nil
}

// FormatNotification builds the HTML notification for a new video.
func FormatNotification(accountName, title, videoID string) string {
	return fmt.Sprintf("[%s] New video: <b>%s</b>\nhttps://youtu.be/%s",
		escapeHTML(accountName), escapeHTML(title), videoID)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
