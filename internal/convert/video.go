package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// FrameFormat is the only operation the video backend supports: split the
// video into frames and archive them
const FrameFormat = "frame"

// VideoInputFormats lists accepted video extensions
var VideoInputFormats = FormatSet{"mp4", "avi", "mov", "mkv", "webm", "flv", "wmv", "3gp", "m4v", "mpeg", "mpg"}

// VideoOutputFormats lists the operations of the video backend
var VideoOutputFormats = FormatSet{FrameFormat}

// VideoConverter splits videos into JPEG frames with ffmpeg
type VideoConverter struct {
	workspace *Workspace
	ffmpeg    string
	run       Runner
	logger    *zap.Logger
}

// NewVideoConverter creates an ffmpeg backend
func NewVideoConverter(workspace *Workspace, ffmpegPath string, run Runner, logger *zap.Logger) *VideoConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if run == nil {
		run = ExecRunner
	}
	return &VideoConverter{
		workspace: workspace,
		ffmpeg:    ffmpegPath,
		run:       run,
		logger:    logger.Named("video"),
	}
}

func (c *VideoConverter) Name() string             { return "video" }
func (c *VideoConverter) InputFormats() FormatSet  { return VideoInputFormats }
func (c *VideoConverter) OutputFormats() FormatSet { return VideoOutputFormats }

// Convert extracts every frame into a nested folder, zips the folder into a
// single archive and deletes the folder
func (c *VideoConverter) Convert(ctx context.Context, sourcePath, targetFormat string) (Result, error) {
	c.logger.Debug("Framing video", zap.String("source", sourcePath), zap.String("target", targetFormat))

	if !VideoOutputFormats.Contains(targetFormat) {
		return Unsupported(fmt.Sprintf("operation %s is not supported", targetFormat)), nil
	}
	if source := FormatOf(sourcePath); !VideoInputFormats.Contains(source) {
		return Unsupported(fmt.Sprintf("format %s is not supported to convert from", source)), nil
	}

	framesDir, err := c.workspace.NewDir()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		c.logger.Debug("Deleting frames folder", zap.String("path", framesDir))
		if err := c.workspace.RemoveAll(framesDir); err != nil {
			c.logger.Error("Failed to delete frames folder", zap.Error(err))
		}
	}()

	output, err := c.run(ctx, c.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", sourcePath,
		"-q:v", "2",
		filepath.Join(framesDir, "%d.jpeg"),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("run ffmpeg: %w", ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Warn("ffmpeg rejected video",
				zap.String("source", sourcePath),
				zap.ByteString("output", output),
			)
			return Unsupported("video cannot be decoded"), nil
		}
		return Result{}, fmt.Errorf("run ffmpeg: %w", err)
	}

	frames, err := listFrames(framesDir)
	if err != nil {
		return Result{}, err
	}
	if len(frames) == 0 {
		return Unsupported("video has no frames"), nil
	}

	archivePath := c.workspace.NewFile("zip")
	if err := writeArchive(archivePath, frames); err != nil {
		c.workspace.Remove(archivePath)
		return Result{}, err
	}

	c.logger.Info("Video framed",
		zap.String("source", sourcePath),
		zap.Int("frames", len(frames)),
		zap.String("path", archivePath),
	)
	return Converted(archivePath), nil
}

// listFrames returns frame files ordered by frame number
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}

	var frames []string
	for _, entry := range entries {
		if !entry.IsDir() {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Slice(frames, func(i, j int) bool {
		return frameNumber(frames[i]) < frameNumber(frames[j])
	})
	return frames, nil
}

func frameNumber(path string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err != nil {
		return -1
	}
	return n
}

func writeArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range files {
		// JPEG frames are already compressed
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   filepath.Base(file),
			Method: zip.Store,
		})
		if err != nil {
			return fmt.Errorf("add %s to archive: %w", file, err)
		}
		if err := copyFile(w, file); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return out.Close()
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("archive frame: %w", err)
	}
	return nil
}
