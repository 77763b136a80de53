// Package telegram delivers garden notifications through a Telegram bot
// using the Telego library. Delivery is fire and forget from the
// orchestrator's point of view; failed sends are retried a few times with
// backoff and then dropped with a log line.
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/retry"
	"github.com/mymmrac/telego"
)

const sendTimeout = 30 * time.Second

// Sender sends composed notification bodies to one chat.
type Sender struct {
	bot    *telego.Bot
	chatID int64
	logger *logger.Logger
	retry  retry.Config
}

// New creates a sender for the given bot token and chat.
func New(token string, chatID int64, log *logger.Logger) (*Sender, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Sender{
		bot:    bot,
		chatID: chatID,
		logger: log,
		retry: retry.Config{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     10 * time.Second,
		},
	}, nil
}

// Send implements notify.Sender. It returns immediately; delivery happens on
// its own goroutine.
func (s *Sender) Send(title, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		err := retry.Do(ctx, func() error {
			_, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
				ChatID: telego.ChatID{ID: s.chatID},
				Text:   title + "\n\n" + body,
			})
			return err
		}, s.retry)
		if err != nil {
			s.logger.Error("failed to deliver notification", err,
				logger.Field{Key: "title", Value: title})
		}
	}()
}
