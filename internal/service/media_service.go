package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
)

// MediaService wraps the transcoding backend.
type MediaService interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	ExtractFrame(ctx context.Context, videoPath string, at time.Duration, outPath string) error
	Trim(ctx context.Context, inPath, outPath string, max time.Duration) error
}

type ffmpegService struct {
	cfg config.Media
}

func NewMediaService(cfg config.Media) MediaService {
	return &ffmpegService{cfg: cfg}
}

func (s *ffmpegService) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := s.run(ctx, s.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

func (s *ffmpegService) ExtractFrame(ctx context.Context, videoPath string, at time.Duration, outPath string) error {
	_, err := s.run(ctx, s.cfg.FFmpegPath,
		"-y",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", "scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2",
		outPath,
	)
	return err
}

func (s *ffmpegService) Trim(ctx context.Context, inPath, outPath string, max time.Duration) error {
	_, err := s.run(ctx, s.cfg.FFmpegPath,
		"-y",
		"-i", inPath,
		"-t", formatSeconds(max),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	)
	return err
}

func (s *ffmpegService) run(ctx context.Context, bin string, args ...string) (string, error) {
	if s.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return "", fmt.Errorf("%s: %w: %s", bin, err, msg)
	}
	return stdout.String(), nil
}

func parseProbeDuration(out string) (time.Duration, error) {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("probe returned no duration: %w", ErrInvalidMedia)
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, ErrInvalidMedia)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
