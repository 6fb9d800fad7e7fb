// Package ffmpeg wraps the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"songrecognition/internal/apperr"
	"songrecognition/internal/media"
)

// CommandRunner executes a command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// maxStderr caps the diagnostic output kept in errors.
const maxStderr = 2048

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Tool runs ffmpeg and ffprobe with a fixed output format.
type Tool struct {
	ffmpegPath  string
	ffprobePath string
	format      media.AudioFormat
	cmd         CommandRunner
}

// Option configures a Tool.
type Option func(*Tool)

// WithCommandRunner replaces the process runner, mostly for tests.
func WithCommandRunner(r CommandRunner) Option {
	return func(t *Tool) { t.cmd = r }
}

// WithFormat overrides the output encoding.
func WithFormat(f media.AudioFormat) Option {
	return func(t *Tool) { t.format = f }
}

// New creates a Tool. Empty paths default to the binaries on PATH.
func New(ffmpegPath, ffprobePath string, opts ...Option) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	t := &Tool{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		format:      media.NormalizedFormat,
		cmd:         execRunner{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode converts in to the normalized format and writes it to out.
func (t *Tool) Transcode(ctx context.Context, in, out string) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in}
	args = append(args, t.format.EncodeArgs()...)
	args = append(args, out)

	if _, err := t.cmd.Run(ctx, t.ffmpegPath, args...); err != nil {
		return processError("transcode", err)
	}
	return nil
}

// EncodeClip re-encodes [start, start+length) of path and returns the
// encoded bytes without touching the filesystem.
func (t *Tool) EncodeClip(ctx context.Context, path string, start, length time.Duration) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", FormatTime(start),
		"-t", FormatTime(length),
		"-i", path,
	}
	args = append(args, t.format.EncodeArgs()...)
	args = append(args, "pipe:1")

	out, err := t.cmd.Run(ctx, t.ffmpegPath, args...)
	if err != nil {
		return nil, processError("encode clip", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: encode clip at %s produced no data", apperr.ErrProcessFailure, FormatTime(start))
	}
	return out, nil
}

// Duration reads the container duration of path with ffprobe.
func (t *Tool) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := t.cmd.Run(ctx, t.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return 0, processError("probe", err)
	}
	return parseProbeDuration(out)
}

type probeData struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func parseProbeDuration(out []byte) (time.Duration, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, fmt.Errorf("%w: invalid ffprobe output: %w", apperr.ErrProcessFailure, err)
	}
	secs, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("%w: ffprobe reported no duration", apperr.ErrProcessFailure)
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Millisecond), nil
}

// FormatTime renders d as HH:MM:SS.mmm.
func FormatTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

func processError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", apperr.ErrProcessFailure, op, err)
}
