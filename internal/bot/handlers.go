package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"convertbot/internal/phrases"
)

// HandleUpdate processes a single update from the webhook or polling
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.HandleMessage(ctx, update.Message)
	}

	// Handle callback queries (inline keyboard button clicks)
	if update.CallbackQuery != nil {
		b.HandleCallback(ctx, update.CallbackQuery)
	}
}

// HandleMessage classifies msg, runs it through the dispatch rules and
// returns the replies that were sent. Every failure is answered with the
// generic error phrase.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) []Action {
	if msg == nil || msg.Chat == nil {
		b.logger.Warn("Ignoring message without chat")
		return nil
	}
	if msg.From == nil {
		// Anonymous senders cannot be authorized
		b.logger.Warn("Message without sender", zap.Int64("chat_id", msg.Chat.ID))
		ex := b.newExchange(ctx, msg.Chat.ID, 0)
		ex.reply(phrases.UnknownUser)
		return ex.actions
	}
	return b.handle(ctx, msg.Chat.ID, msg.From.ID, Classify(msg))
}

// HandleCallback processes inline keyboard button clicks. A format button
// behaves exactly like typing the format name.
func (b *Bot) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) []Action {
	if query == nil || query.From == nil {
		return nil
	}

	// Answer the callback query to remove loading state
	if err := b.gateway.AnswerCallback(ctx, query.ID); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err), zap.Int64("user_id", query.From.ID))
	}

	if query.Message == nil || query.Message.Chat == nil || !strings.HasPrefix(query.Data, formatCallbackPrefix) {
		b.logger.Debug("Ignoring callback", zap.String("callback_data", query.Data))
		return nil
	}

	return b.handle(ctx, query.Message.Chat.ID, query.From.ID, Classification{
		Category: CategoryPlainText,
		Text:     strings.TrimPrefix(query.Data, formatCallbackPrefix),
	})
}

func (b *Bot) handle(ctx context.Context, chatID, userID int64, c Classification) (actions []Action) {
	ex := b.newExchange(ctx, chatID, userID)

	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.fail(ex, fmt.Errorf("panic: %v", r))
		}
		actions = ex.actions
	}()

	unlock := b.locks.lock(userID)
	defer unlock()

	b.logger.Debug("Handling message",
		zap.Int64("user_id", userID),
		zap.Stringer("category", c.Category),
	)

	if err := b.dispatch(ex, c); err != nil {
		b.fail(ex, err)
	}
	return ex.actions
}

// fail logs err and answers with the generic error phrase
func (b *Bot) fail(ex *exchange, err error) {
	b.logger.Error("Failed to handle message",
		zap.Error(err),
		zap.Int64("user_id", ex.userID),
		zap.Int64("chat_id", ex.chatID),
	)
	ex.reply(phrases.Error)
}

func (b *Bot) dispatch(ex *exchange, c Classification) error {
	ok, err := b.authorize(ex)
	if err != nil || !ok {
		return err
	}

	switch c.Category {
	case CategoryCommand:
		return b.handleCommand(ex, c.Text)
	case CategoryPlainText:
		return b.handleFormatSelection(ex, c.Text)
	case CategoryDocument:
		return b.handleDocument(ex, c)
	case CategoryPhoto, CategoryVideo:
		b.logger.Debug("Compressed file supplied", zap.Int64("user_id", ex.userID))
		ex.reply(phrases.CompressedFile)
	case CategorySticker, CategoryAnimation, CategoryAudio:
		ex.reply(phrases.FeatureNotAvailable)
	default:
		ex.reply(phrases.UnsupportedMessage)
	}
	return nil
}

// authorize replies "unknown user" and returns false when the sender is
// not registered
func (b *Bot) authorize(ex *exchange) (bool, error) {
	registered, err := b.users.IsRegistered(ex.ctx, ex.userID)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	if !registered {
		b.logger.Warn("Unauthorized access attempt", zap.Int64("user_id", ex.userID))
		ex.reply(phrases.UnknownUser)
		return false, nil
	}
	return true, nil
}
