package middleware

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/luxentry/lux-entry-bot/internal/contextkeys"
)

type Middlewares struct{}

func NewMessageAnalyzer() *Middlewares {
	return &Middlewares{}
}

// AnalyzeMessageMiddleware classifies the update into one of the event kinds
// the state machine matches on and stashes the classification in the context.
func (ma *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.CallbackQuery != nil && update.CallbackQuery.Data != "" {
			newCtx := contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			newCtx = contextkeys.WithCallbackData(newCtx, update.CallbackQuery.Data)
			next(newCtx, b, update)
			return
		}

		if update.Message == nil {
			next(contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown), b, update)
			return
		}

		next(ma.analyzeMessage(ctx, update.Message), b, update)
	}
}

func (ma *Middlewares) analyzeMessage(ctx context.Context, msg *models.Message) context.Context {
	if len(msg.Photo) > 0 {
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypePhoto)
		return contextkeys.WithPhotoInfo(ctx, ma.analyzePhoto(msg.Photo))
	}

	if msg.Text != "" && strings.HasPrefix(msg.Text, "/") {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
	}

	if msg.Text != "" || msg.Caption != "" {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
	}

	return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
}

func (ma *Middlewares) analyzePhoto(sizes []models.PhotoSize) *contextkeys.PhotoInfo {
	best := sizes[0]
	for i := 1; i < len(sizes); i++ {
		if sizes[i].FileSize > best.FileSize {
			best = sizes[i]
		}
	}
	return &contextkeys.PhotoInfo{
		FileID:   best.FileID,
		FileSize: int64(best.FileSize),
		Width:    best.Width,
		Height:   best.Height,
	}
}
