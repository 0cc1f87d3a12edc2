package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"convertbot/internal/phrases"
	"convertbot/internal/storage"
)

// handleCommand routes a slash command from an authorized sender
func (b *Bot) handleCommand(ex *exchange, text string) error {
	name, args := commandName(text)

	switch name {
	case "register":
		return b.handleRegister(ex, args)
	case "start":
		ex.reply(phrases.Start)
	case "formats":
		b.handleFormats(ex)
	case "stats":
		return b.handleStats(ex)
	case "history":
		return b.handleHistory(ex)
	default:
		ex.reply(phrases.WrongCommand)
	}
	return nil
}

// handleFormats lists the accepted source formats of every backend
func (b *Bot) handleFormats(ex *exchange) {
	p := b.phrases

	var sb strings.Builder
	sb.WriteString(p.Lookup(phrases.FormatsHeader))
	fmt.Fprintf(&sb, "\n\n%s\n%s", p.Lookup(phrases.FormatsImages), b.backends.Image.InputFormats())
	fmt.Fprintf(&sb, "\n\n%s\n%s", p.Lookup(phrases.FormatsDocuments), b.backends.Document.InputFormats())
	fmt.Fprintf(&sb, "\n\n%s\n%s", p.Lookup(phrases.FormatsVideo), b.backends.Video.InputFormats())

	ex.sendText(sb.String(), nil)
}

// handleRegister handles /register <telegram id>, available to admins only
func (b *Bot) handleRegister(ex *exchange, args []string) error {
	isAdmin, err := b.users.IsAdmin(ex.ctx, ex.userID)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !isAdmin {
		b.logger.Warn("Register attempt by non-admin", zap.Int64("user_id", ex.userID))
		ex.reply(phrases.NotAdmin)
		return nil
	}

	if len(args) != 1 {
		ex.reply(phrases.WrongCommandFormat)
		return nil
	}

	newUserID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		ex.reply(phrases.NotValidUser)
		return nil
	}

	if err := b.users.Register(ex.ctx, newUserID); err != nil {
		if errors.Is(err, storage.ErrAlreadyRegistered) {
			ex.reply(phrases.AlreadyRegistered)
			return nil
		}
		return fmt.Errorf("register user %d: %w", newUserID, err)
	}

	b.logger.Info("User registered",
		zap.Int64("user_id", newUserID),
		zap.Int64("admin_id", ex.userID),
	)
	ex.reply(phrases.UserRegistered)
	return nil
}

// handleStats shows the sender's usage counter and registration date
func (b *Bot) handleStats(ex *exchange) error {
	user, err := b.users.GetUser(ex.ctx, ex.userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	ex.sendText(b.phrases.Format(phrases.Stats, user.UsageCount, user.RegisteredAt.Format("2006-01-02")), nil)
	return nil
}

// handleHistory lists the sender's latest conversions
func (b *Bot) handleHistory(ex *exchange) error {
	events, err := b.conversions.RecentConversions(ex.ctx, ex.userID, historyLimit)
	if err != nil {
		return fmt.Errorf("recent conversions: %w", err)
	}

	if len(events) == 0 {
		ex.reply(phrases.HistoryEmpty)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(b.phrases.Lookup(phrases.HistoryHeader))
	for _, e := range events {
		fmt.Fprintf(&sb, "\n%s  %s → %s  (%s)",
			e.Time.Format("2006-01-02 15:04"), e.SourceFormat, e.TargetFormat, e.Status)
	}
	ex.sendText(sb.String(), nil)
	return nil
}
