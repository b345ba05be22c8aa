package bot

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"dramadesk/internal/retry"
)

// Sender delivers one outbound chat message. Faked in dispatcher tests.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends Markdown messages through the Telegram Bot API with
// a bounded retry, and resolves file IDs to download URLs for image intake.
// Delivery failure after retries is non-fatal to update handling; callers
// log it and move on.
type TelegramSender struct {
	bot    *tgbot.Bot
	policy retry.Policy
	log    logrus.FieldLogger
}

// NewTelegramSender wraps b with a 3-attempt fixed-backoff delivery policy.
func NewTelegramSender(b *tgbot.Bot, logger logrus.FieldLogger) *TelegramSender {
	return &TelegramSender{
		bot:    b,
		policy: retry.Policy{Attempts: 3, Delay: 500 * time.Millisecond},
		log:    logger.WithField("component", "sender"),
	}
}

// Send delivers text to chatID, retrying transient failures.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	err := s.policy.Do(ctx, func() error {
		_, sendErr := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			// Legacy Markdown: the wizard prompts use *bold* without the
			// escaping MarkdownV2 would demand.
			ParseMode: models.ParseModeMarkdownV1,
		})
		return sendErr
	})
	if err != nil {
		s.log.WithError(err).WithField("chat_id", chatID).Error("Message delivery failed after retries")
		return fmt.Errorf("message delivery failed: %w", err)
	}
	return nil
}

// FileURL resolves a Telegram file ID to its transient download URL.
// Implements intake.FileLinker.
func (s *TelegramSender) FileURL(ctx context.Context, fileID string) (string, error) {
	f, err := s.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("getFile failed for %s: %w", fileID, err)
	}
	return s.bot.FileDownloadLink(f), nil
}
