package bot

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"convertbot/internal/convert"
	"convertbot/internal/models"
	"convertbot/internal/phrases"
)

// handleFormatSelection treats text as the target format for the sender's
// pending file
func (b *Bot) handleFormatSelection(ex *exchange, text string) error {
	source, err := b.users.LastFile(ex.ctx, ex.userID)
	if err != nil {
		return fmt.Errorf("get last file: %w", err)
	}
	if source == "" {
		ex.reply(phrases.NoFile)
		return nil
	}

	target := strings.ToLower(strings.TrimSpace(text))

	// Videos only support their own operations
	if b.backends.Video.InputFormats().Contains(convert.FormatOf(source)) {
		if !b.backends.Video.OutputFormats().Contains(target) {
			ex.reply(phrases.FeatureNotAvailable)
			return nil
		}
		return b.runConversion(ex, b.backends.Video, source, target)
	}

	backend := b.backendForTarget(target)
	if backend == nil {
		ex.reply(phrases.NotSupportedFormat)
		return nil
	}
	return b.runConversion(ex, backend, source, target)
}

// backendForTarget returns the first backend producing target
func (b *Bot) backendForTarget(target string) convert.Backend {
	for _, backend := range []convert.Backend{b.backends.Document, b.backends.Image, b.backends.Video} {
		if backend.OutputFormats().Contains(target) {
			return backend
		}
	}
	return nil
}

// runConversion converts source with backend and replies with the result.
// The produced file is deleted once sent, the source is kept for further
// conversions.
func (b *Bot) runConversion(ex *exchange, backend convert.Backend, source, target string) error {
	ex.reply(phrases.Converting)

	sourceFormat := convert.FormatOf(source)
	if !backend.InputFormats().Contains(sourceFormat) {
		b.logger.Warn("Pending file does not fit backend",
			zap.Int64("user_id", ex.userID),
			zap.String("backend", backend.Name()),
			zap.String("source_format", sourceFormat),
			zap.String("target_format", target),
		)
		return nil
	}

	event := models.ConversionEvent{
		Time:         time.Now().UTC(),
		UserID:       ex.userID,
		Backend:      backend.Name(),
		SourceFormat: sourceFormat,
		TargetFormat: target,
	}

	res, err := backend.Convert(ex.ctx, source, target)
	event.Duration = time.Since(event.Time)
	if err != nil {
		event.Status = models.ConversionFailed
		b.recordConversion(ex, event)
		return fmt.Errorf("convert %s to %s: %w", sourceFormat, target, err)
	}

	if res.Status == convert.StatusUnsupportedFormat {
		b.logger.Error("Wrong format",
			zap.Int64("user_id", ex.userID),
			zap.String("backend", backend.Name()),
			zap.String("source_format", sourceFormat),
			zap.String("target_format", target),
			zap.String("reason", res.Reason),
		)
		event.Status = models.ConversionUnsupported
		b.recordConversion(ex, event)
		ex.reply(phrases.WrongFormat)
		return nil
	}

	defer b.removeTemp(res.Path)

	if err := ex.sendDocument(res.Path); err != nil {
		return fmt.Errorf("send converted file: %w", err)
	}
	if err := b.users.IncrementUsage(ex.ctx, ex.userID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	event.Status = models.ConversionSucceeded
	b.recordConversion(ex, event)

	b.logger.Info("Conversion delivered",
		zap.Int64("user_id", ex.userID),
		zap.String("backend", backend.Name()),
		zap.String("source_format", sourceFormat),
		zap.String("target_format", target),
		zap.Duration("duration", event.Duration),
	)
	return nil
}

// recordConversion appends to the conversion log. Failures are logged only.
func (b *Bot) recordConversion(ex *exchange, event models.ConversionEvent) {
	if err := b.conversions.RecordConversion(ex.ctx, event); err != nil {
		b.logger.Warn("Failed to record conversion", zap.Error(err), zap.Int64("user_id", ex.userID))
	}
}

// removeTemp deletes a temp file, logging failures
func (b *Bot) removeTemp(path string) {
	if err := b.workspace.Remove(path); err != nil {
		b.logger.Error("Failed to delete temp file", zap.Error(err), zap.String("file", path))
	}
}
