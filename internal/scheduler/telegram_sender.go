package scheduler

import (
	"context"

	"github.com/go-telegram/bot"

	"github.com/luxentry/lux-entry-bot/internal/messages"
)

// TelegramSender delivers reminders over the bot API. Private chat ids equal
// the user's Telegram id.
type TelegramSender struct {
	Bot *bot.Bot
}

func (t *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := t.Bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	return err
}
