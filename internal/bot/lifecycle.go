package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookHandler processes one update per request before answering. The
// response is always {"ok": true}, even for bodies that fail to decode.
// Handling outlives the request context.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			b.logger.Warn("Error decoding webhook update", zap.Error(err))
		} else {
			// A client disconnect must not abort a conversion half way
			b.HandleUpdate(context.WithoutCancel(r.Context()), update)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`))
	}
}

// SetWebhook registers url with Telegram
func (g *TelegramGateway) SetWebhook(url string) error {
	g.logger.Info("Setting up webhook", zap.String("webhook_url", url))

	webhookConfig, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	webhookConfig.MaxConnections = 40

	if _, err := g.api.Request(webhookConfig); err != nil {
		g.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", url))
		return err
	}

	// Get webhook info to verify
	info, err := g.api.GetWebhookInfo()
	if err != nil {
		g.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		g.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}
	return nil
}

// Poll receives updates by long polling and passes each to handle until ctx
// is done
func (g *TelegramGateway) Poll(ctx context.Context, handle func(context.Context, tgbotapi.Update)) {
	g.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := g.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		g.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := g.api.GetUpdatesChan(u)

	g.logger.Info("Bot started successfully. Waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			g.api.StopReceivingUpdates()
			g.logger.Info("Polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handle(ctx, update)
		}
	}
}
