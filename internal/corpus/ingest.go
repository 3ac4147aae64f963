package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrClipExists is returned when a clip folder already holds frames.
var ErrClipExists = errors.New("clip folder already has frames")

// Extractor turns video files into clip folders laid out for the corpus.
type Extractor struct {
	// FFmpeg is the ffmpeg binary; empty means "ffmpeg" on PATH.
	FFmpeg string
	// FPS samples frames at this rate; 0 keeps every frame.
	FPS    float64
	Layout Layout
}

// Extract writes the frames of videoPath into root/<video name>/ as
// 00001.jpeg, 00002.jpeg, ... and returns the clip folder path.
func (e Extractor) Extract(ctx context.Context, videoPath, root string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("video file %q: %w", videoPath, err)
	}

	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	clipDir := filepath.Join(root, name)

	firstFrame := filepath.Join(clipDir, e.Layout.FrameName(0))
	if _, err := os.Stat(firstFrame); err == nil {
		return clipDir, fmt.Errorf("%s: %w", clipDir, ErrClipExists)
	}

	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create frame directory '%s': %w", clipDir, err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", videoPath}
	if e.FPS > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%g", e.FPS))
	}
	args = append(args, filepath.Join(clipDir, fmt.Sprintf("%%0%dd%s", e.Layout.FramePadding, e.Layout.FrameExtension)))

	binary := e.FFmpeg
	if binary == "" {
		binary = "ffmpeg"
	}
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	if _, err := os.Stat(firstFrame); err != nil {
		return "", fmt.Errorf("ffmpeg produced no frames in %s: %w", clipDir, ErrFrameNotFound)
	}
	return clipDir, nil
}
