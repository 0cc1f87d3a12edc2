package bot

import (
	"fmt"

	"go.uber.org/zap"

	"convertbot/internal/convert"
	"convertbot/internal/phrases"
)

// handleDocument downloads an uploaded file, makes it the sender's pending
// file and offers the formats it can be converted to
func (b *Bot) handleDocument(ex *exchange, c Classification) error {
	if c.Size > b.maxFileSize {
		b.logger.Debug("File too big",
			zap.Int64("user_id", ex.userID),
			zap.Int("size", c.Size),
			zap.Int("max_size", b.maxFileSize),
		)
		ex.reply(phrases.FileTooBig)
		return nil
	}

	format := convert.FormatOf(c.FileName)
	path := b.workspace.NewFile(format)
	if err := b.gateway.Download(ex.ctx, c.FileID, path); err != nil {
		return fmt.Errorf("download %s: %w", c.FileID, err)
	}

	if err := b.recordUpload(ex, path); err != nil {
		b.removeTemp(path)
		return err
	}

	switch {
	case b.backends.Image.InputFormats().Contains(format):
		b.offerFormats(ex, phrases.ImageDetected, b.backends.Image.OutputFormats().Without(convert.ImageAliases(format)...))
	case b.backends.Document.InputFormats().Contains(format):
		b.offerFormats(ex, phrases.DocumentDetected, b.backends.Document.OutputFormats().Without(format))
	case b.backends.Video.InputFormats().Contains(format):
		b.offerFormats(ex, phrases.VideoDetected, b.backends.Video.OutputFormats())
	default:
		b.logger.Debug("Document format not supported", zap.String("format", format))
		ex.reply(phrases.NotSupportedFormat)
	}
	return nil
}

// recordUpload replaces the sender's pending file with path, deleting the
// previous one. Deletion failures are logged only.
func (b *Bot) recordUpload(ex *exchange, path string) error {
	previous, err := b.users.LastFile(ex.ctx, ex.userID)
	if err != nil {
		return fmt.Errorf("get last file: %w", err)
	}
	if previous != "" && previous != path {
		b.removeTemp(previous)
	}

	if err := b.users.SetLastFile(ex.ctx, ex.userID, path); err != nil {
		return fmt.Errorf("set last file: %w", err)
	}
	return nil
}

func (b *Bot) offerFormats(ex *exchange, key string, formats convert.FormatSet) {
	ex.sendText(b.phrases.Lookup(key)+"\n"+formats.String(), formats)
}
