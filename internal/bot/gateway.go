package bot

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Gateway is the boundary to the messaging provider
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, choices []string) error
	SendDocument(ctx context.Context, chatID int64, path string) error
	// Download stores the file identified by fileID at dst
	Download(ctx context.Context, fileID, dst string) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// TelegramGateway implements Gateway over the Telegram Bot API
type TelegramGateway struct {
	api    *tgbotapi.BotAPI
	client *http.Client
	logger *zap.Logger
}

// NewTelegramGateway connects to the Bot API with token
func NewTelegramGateway(token string, logger *zap.Logger) (*TelegramGateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot API connected", zap.String("bot_username", api.Self.UserName))

	return &TelegramGateway{
		api: api,
		client: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
			},
		},
		logger: logger,
	}, nil
}

// SendText sends a text message. Non-empty choices become an inline keyboard.
func (g *TelegramGateway) SendText(ctx context.Context, chatID int64, text string, choices []string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(choices) > 0 {
		msg.ReplyMarkup = choiceKeyboard(choices)
	}
	if _, err := g.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendDocument uploads the file at path as a document
func (g *TelegramGateway) SendDocument(ctx context.Context, chatID int64, path string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if _, err := g.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	g.logger.Debug("Document sent", zap.Int64("chat_id", chatID), zap.String("file", path))
	return nil
}

// Download resolves fileID to a download link and streams it to dst
func (g *TelegramGateway) Download(ctx context.Context, fileID, dst string) error {
	file, err := g.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(g.api.Token), nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("save file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("save file: %w", err)
	}

	g.logger.Debug("File downloaded", zap.String("file_id", fileID), zap.String("file", dst))
	return nil
}

// AnswerCallback clears the loading state of an inline keyboard button
func (g *TelegramGateway) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := g.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
