package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/luxentry/lux-entry-bot/internal/contextkeys"
	"github.com/luxentry/lux-entry-bot/internal/messages"
	"github.com/luxentry/lux-entry-bot/internal/onboarding"
)

type Handlers struct {
	machine *onboarding.Machine
}

func NewHandlers(machine *onboarding.Machine) *Handlers {
	return &Handlers{
		machine: machine,
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := bh.getChatIDFromUpdate(update)
	user := getUserFromUpdate(update)
	if user == nil || chatID == 0 {
		return
	}
	messageType, _ := contextkeys.GetMessageType(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update, user, chatID)
	case contextkeys.MessageTypeClickButton:
		bh.HandleCallback(ctx, b, update, user, chatID)
	case contextkeys.MessageTypePhoto:
		bh.HandlePhoto(ctx, b, update, user, chatID)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, b, update, user, chatID)
	default:
		// Stickers, voice notes and the like carry nothing for the flow.
	}
}

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update, user *models.User, chatID int64) {
	command := strings.TrimSpace(update.Message.Text)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch {
	case cmd == "/start" || strings.HasPrefix(cmd, "/start="):
		replies, err := bh.machine.Start(ctx, user.ID, chatID, user.Username, user.FirstName, command)
		bh.sendReplies(ctx, b, chatID, replies, err)
	default:
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.ErrorUnknownCommand(),
			ParseMode: messages.ParseModeHTML,
		})
	}
}

func (bh *Handlers) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update, user *models.User, chatID int64) {
	if update.CallbackQuery == nil {
		return
	}
	_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")

	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = update.CallbackQuery.Data
	}

	replies, err := bh.machine.Callback(ctx, user.ID, chatID, data)
	bh.sendReplies(ctx, b, chatID, replies, err)
}

func (bh *Handlers) HandlePhoto(ctx context.Context, b *bot.Bot, update *models.Update, user *models.User, chatID int64) {
	photo, ok := contextkeys.GetPhotoInfo(ctx)
	if !ok || photo == nil || photo.FileID == "" {
		return
	}

	replies, err := bh.machine.Photo(ctx, user.ID, chatID, photo.FileID)
	bh.sendReplies(ctx, b, chatID, replies, err)
}

func (bh *Handlers) HandleText(ctx context.Context, b *bot.Bot, update *models.Update, user *models.User, chatID int64) {
	replies, err := bh.machine.Text(ctx, user.ID, chatID, update.Message.Text)
	bh.sendReplies(ctx, b, chatID, replies, err)
}

func (bh *Handlers) sendReplies(ctx context.Context, b *bot.Bot, chatID int64, replies []onboarding.Reply, err error) {
	if err != nil {
		log.Printf("Handler error chat=%d: %v", chatID, err)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.ErrorDefault(),
			ParseMode: messages.ParseModeHTML,
		})
		return
	}

	for _, reply := range replies {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      reply.Text,
			ParseMode: messages.ParseModeHTML,
		}
		if len(reply.Buttons) > 0 {
			params.ReplyMarkup = buildInlineKeyboard(reply.Buttons)
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			log.Printf("Error sending message chat=%d: %v", chatID, err)
		}
	}
}

func buildInlineKeyboard(buttons [][]onboarding.Button) *models.InlineKeyboardMarkup {
	pad := func(s string) string { return " " + s + " " }
	rows := make([][]models.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		keyboardRow := make([]models.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			keyboardRow = append(keyboardRow, models.InlineKeyboardButton{
				Text:         pad(button.Text),
				CallbackData: button.Data,
			})
		}
		rows = append(rows, keyboardRow)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (bh *Handlers) answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string) error {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func (bh *Handlers) getChatIDFromUpdate(update *models.Update) int64 {
	if update == nil {
		return 0
	}
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
		if update.CallbackQuery.Message.InaccessibleMessage != nil {
			return update.CallbackQuery.Message.InaccessibleMessage.Chat.ID
		}
	}
	return 0
}

func getUserFromUpdate(update *models.Update) *models.User {
	if update == nil {
		return nil
	}
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From
	}
	if update.CallbackQuery != nil {
		return &update.CallbackQuery.From
	}
	return nil
}
