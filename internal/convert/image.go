package convert

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	ico "github.com/biessek/golang-ico"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
)

// ImageFormats is both the input and the output set of the image backend
var ImageFormats = FormatSet{"ico", "bmp", "jpeg", "png", "jpg", "webp"}

// maxIconSize is the largest side an ICO entry can have
const maxIconSize = 256

// ImageConverter converts between the formats of ImageFormats
type ImageConverter struct {
	workspace *Workspace
	logger    *zap.Logger
}

// NewImageConverter creates an image backend writing into workspace
func NewImageConverter(workspace *Workspace, logger *zap.Logger) *ImageConverter {
	return &ImageConverter{
		workspace: workspace,
		logger:    logger.Named("image"),
	}
}

func (c *ImageConverter) Name() string             { return "image" }
func (c *ImageConverter) InputFormats() FormatSet  { return ImageFormats }
func (c *ImageConverter) OutputFormats() FormatSet { return ImageFormats }

// canonicalImageFormat maps extension aliases to decoder names
func canonicalImageFormat(format string) string {
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// ImageAliases returns every name in ImageFormats that denotes the same
// format as format, format itself included
func ImageAliases(format string) []string {
	canonical := canonicalImageFormat(strings.ToLower(format))
	aliases := []string{format}
	for _, f := range ImageFormats {
		if f != format && canonicalImageFormat(f) == canonical {
			aliases = append(aliases, f)
		}
	}
	return aliases
}

// Convert decodes the source and encodes it as target. Converting an image
// into its own format is rejected.
func (c *ImageConverter) Convert(ctx context.Context, sourcePath, targetFormat string) (Result, error) {
	c.logger.Debug("Converting image", zap.String("source", sourcePath), zap.String("target", targetFormat))

	if !ImageFormats.Contains(targetFormat) {
		return Unsupported(fmt.Sprintf("format %s is not supported to convert to", targetFormat)), nil
	}
	if source := FormatOf(sourcePath); !ImageFormats.Contains(source) {
		return Unsupported(fmt.Sprintf("format %s is not supported to convert from", source)), nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return Result{}, fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	img, detected, err := image.Decode(src)
	if err != nil {
		c.logger.Debug("Image not identified", zap.String("source", sourcePath), zap.Error(err))
		return Unsupported("image cannot be identified"), nil
	}

	target := canonicalImageFormat(targetFormat)
	if detected == target {
		return Unsupported(fmt.Sprintf("image is already %s", detected)), nil
	}

	newPath := c.workspace.NewFile(targetFormat)
	out, err := os.Create(newPath)
	if err != nil {
		return Result{}, fmt.Errorf("create image: %w", err)
	}

	if err := encodeImage(out, img, target); err != nil {
		out.Close()
		c.workspace.Remove(newPath)
		return Result{}, fmt.Errorf("encode %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		c.workspace.Remove(newPath)
		return Result{}, fmt.Errorf("write image: %w", err)
	}

	c.logger.Info("Converted image",
		zap.String("from", detected),
		zap.String("to", target),
		zap.String("path", newPath),
	)
	return Converted(newPath), nil
}

func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(95))
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "bmp":
		return imaging.Encode(w, img, imaging.BMP)
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: true})
	case "ico":
		b := img.Bounds()
		if b.Dx() > maxIconSize || b.Dy() > maxIconSize {
			img = imaging.Fit(img, maxIconSize, maxIconSize, imaging.Lanczos)
		}
		return ico.Encode(w, img)
	default:
		return fmt.Errorf("no encoder for %s", format)
	}
}
