package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/media"
)

// Options configures the yt-dlp backend.
type Options struct {
	// Binary is the yt-dlp executable, "yt-dlp" when empty.
	Binary string
	// Fragments is the number of fragments fetched concurrently (-N).
	Fragments int
	// CookiesBrowser, when set, is passed as --cookies-from-browser.
	CookiesBrowser string
}

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Downloader resolves hosted pages to audio using yt-dlp
type Downloader struct {
	opts   Options
	Logger *logger.Logger
	run    runFunc
}

var _ media.Extractor = (*Downloader)(nil)

// New creates a new Downloader instance
func New(opts Options, log *logger.Logger) *Downloader {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Fragments <= 0 {
		opts.Fragments = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Downloader{opts: opts, Logger: log, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Messages yt-dlp prints when a link can never resolve to media.
var unresolvableMarkers = []string{
	"Unsupported URL",
	"is not a valid URL",
	"Video unavailable",
	"No video formats found",
	"This video is private",
	"Private video",
	"HTTP Error 404",
	"This video has been removed",
	"Unable to extract",
}

func isUnresolvable(stderr string) bool {
	for _, m := range unresolvableMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}

func (d *Downloader) baseArgs() []string {
	args := []string{
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"-N", strconv.Itoa(d.opts.Fragments),
	}
	// If empty yt-dlp will go to default (--no-cookies-from-browser)
	if d.opts.CookiesBrowser != "" {
		args = append(args, "--cookies-from-browser", d.opts.CookiesBrowser)
	}
	return args
}

// Probe checks whether link resolves to media without downloading it.
func (d *Downloader) Probe(ctx context.Context, link string) (bool, error) {
	args := append([]string{"--simulate"}, d.baseArgs()...)
	args = append(args, "--", link)

	_, stderr, err := d.run(ctx, d.opts.Binary, args...)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("probe cancelled: %w", ctx.Err())
	}
	if isUnresolvable(string(stderr)) {
		d.Logger.Debug("yt-dlp cannot resolve %s: %s", link, firstLine(stderr))
		return false, nil
	}
	return false, fmt.Errorf("yt-dlp probe failed: %w\nDetails: %s", err, firstLine(stderr))
}

// FetchBestAudio downloads the best audio stream and converts it to the
// asset's format in place.
func (d *Downloader) FetchBestAudio(ctx context.Context, link string, asset *media.Asset) error {
	_, stderr, err := d.run(ctx, d.opts.Binary, d.fetchArgs(link, asset)...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("download cancelled: %w", ctx.Err())
	}

	msg := firstLine(stderr)
	switch {
	case isUnresolvable(string(stderr)):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	case strings.Contains(string(stderr), "Postprocessing"), strings.Contains(string(stderr), "ffmpeg not found"):
		return fmt.Errorf("%w: yt-dlp post-processing: %s", apperr.ErrProcessFailure, msg)
	}
	return fmt.Errorf("yt-dlp download failed: %w\nDetails: %s", err, msg)
}

func (d *Downloader) fetchArgs(link string, asset *media.Asset) []string {
	f := asset.Format
	outputTemplate := strings.TrimSuffix(asset.Path, f.Ext) + ".%(ext)s"

	args := []string{
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", f.Container,
		"--audio-quality", strings.ToUpper(f.Bitrate),
		"--postprocessor-args", fmt.Sprintf("ExtractAudio:-ar %d -ac %d", f.SampleRate, f.Channels),
		"--retries", "3",
		"--fragment-retries", "3",
	}
	args = append(args, d.baseArgs()...)
	args = append(args, "-o", outputTemplate, "--", link)
	return args
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
