package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// formatCallbackPrefix marks inline keyboard data carrying a target format
const formatCallbackPrefix = "format:"

// keyboardColumns is the number of format buttons per keyboard row
const keyboardColumns = 4

// choiceKeyboard lays choices out as format buttons, keyboardColumns per row
func choiceKeyboard(choices []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, choice := range choices {
		currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(choice, formatCallbackPrefix+choice))

		if len(currentRow) == keyboardColumns || i == len(choices)-1 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// commandName returns the lower-cased command of text without the leading
// slash and any @botname suffix, plus its arguments
func commandName(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// exchange is the reply side of handling one message. Actions are delivered
// through the gateway as they are produced and kept for the caller.
type exchange struct {
	ctx     context.Context
	chatID  int64
	userID  int64
	bot     *Bot
	actions []Action
}

func (b *Bot) newExchange(ctx context.Context, chatID, userID int64) *exchange {
	return &exchange{ctx: ctx, chatID: chatID, userID: userID, bot: b}
}

// reply sends the phrase stored under key
func (e *exchange) reply(key string) {
	e.sendText(e.bot.phrases.Lookup(key), nil)
}

// sendText delivers a text reply. Delivery failures are logged only.
func (e *exchange) sendText(text string, choices []string) {
	e.actions = append(e.actions, Action{Kind: ActionText, ChatID: e.chatID, Text: text, Choices: choices})
	if err := e.bot.gateway.SendText(e.ctx, e.chatID, text, choices); err != nil {
		e.bot.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", e.chatID),
			zap.Int64("user_id", e.userID),
		)
	}
}

// sendDocument delivers a file reply
func (e *exchange) sendDocument(path string) error {
	e.actions = append(e.actions, Action{Kind: ActionDocument, ChatID: e.chatID, FilePath: path})
	return e.bot.gateway.SendDocument(e.ctx, e.chatID, path)
}
