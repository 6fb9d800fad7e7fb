package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/metrics"
	"songrecognition/internal/retry"
)

// Extractor resolves hosted pages (video sites and the like) to audio.
type Extractor interface {
	// Probe reports whether link resolves to downloadable media. A false
	// result with a nil error is final; an error may be retried.
	Probe(ctx context.Context, link string) (bool, error)
	// FetchBestAudio downloads the best audio stream of link and writes it,
	// already normalized, to asset.Path.
	FetchBestAudio(ctx context.Context, link string, asset *Asset) error
}

// Fetcher talks plain HTTP to direct media URLs.
type Fetcher interface {
	HeadContentType(ctx context.Context, link string) (string, error)
	Stream(ctx context.Context, link string) (io.ReadCloser, error)
}

// Transcoder converts any ffmpeg-readable file into the normalized format.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string) error
}

// Options configures a Resolver.
type Options struct {
	OutputDir  string
	StagingDir string
	ChunkSize  int
	MaxBytes   int64
	Retry      retry.Policy
}

const defaultChunkSize = 32 * 1024

// DefaultDownloadConcurrency is the process-wide limit on concurrent direct
// downloads and upload saves.
const DefaultDownloadConcurrency = 30

var errTooLarge = errors.New("media exceeds the size limit")

// Resolver materializes a Reference into an Asset.
type Resolver struct {
	extractor  Extractor
	fetcher    Fetcher
	transcoder Transcoder
	gate       *semaphore.Weighted
	opts       Options
	log        *logger.Logger
}

// NewResolver creates a Resolver. gate bounds concurrent direct downloads and
// is meant to be shared by the whole process.
func NewResolver(ex Extractor, f Fetcher, tc Transcoder, gate *semaphore.Weighted, opts Options, log *logger.Logger) *Resolver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if gate == nil {
		gate = semaphore.NewWeighted(DefaultDownloadConcurrency)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		extractor:  ex,
		fetcher:    f,
		transcoder: tc,
		gate:       gate,
		opts:       opts,
		log:        log,
	}
}

// Resolve downloads and normalizes ref. The caller owns the returned asset
// and must Remove it. On error nothing is left on disk.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (*Asset, error) {
	start := time.Now()
	defer metrics.ObserveStage("resolve", start)

	switch ref.Kind() {
	case KindPage:
		return r.resolvePage(ctx, ref)
	case KindDirect:
		return r.resolveDirect(ctx, ref)
	case KindUpload:
		return r.resolveUpload(ctx, ref)
	}
	return nil, fmt.Errorf("%w: unknown reference kind", apperr.ErrValidation)
}

// Exists probes a hosted page. Probe failures that survive all retries are
// logged and reported as false.
func (r *Resolver) Exists(ctx context.Context, link string) bool {
	ok, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (bool, error) {
		return r.extractor.Probe(ctx, link)
	}, r.notify(ctx, "probe"))
	if err != nil {
		logger.FromContext(ctx, r.log).Warn("Probe of %s failed after retries: %v", link, err)
		return false
	}
	return ok
}

func (r *Resolver) resolvePage(ctx context.Context, ref Reference) (*Asset, error) {
	log := logger.FromContext(ctx, r.log)

	if !r.Exists(ctx, ref.Link()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no media at %s", apperr.ErrNotFound, ref.Link())
	}

	asset := NewAsset(r.opts.OutputDir)
	_, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (struct{}, error) {
		err := r.extractor.FetchBestAudio(ctx, ref.Link(), asset)
		if isFinal(err) {
			return struct{}{}, retry.Permanent(err)
		}
		return struct{}{}, err
	}, r.notify(ctx, "extract"))
	if err != nil {
		r.discard(ctx, asset)
		return nil, categorize(err, apperr.ErrTransient)
	}

	if _, err := os.Stat(asset.Path); err != nil {
		r.discard(ctx, asset)
		return nil, fmt.Errorf("%w: extractor produced no file: %w", apperr.ErrProcessFailure, err)
	}

	log.Debug("Extracted %s to %s", ref.Link(), asset.Path)
	return asset, nil
}

func (r *Resolver) resolveDirect(ctx context.Context, ref Reference) (*Asset, error) {
	log := logger.FromContext(ctx, r.log)

	contentType, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (string, error) {
		ct, err := r.fetcher.HeadContentType(ctx, ref.Link())
		if isFinal(err) {
			return "", retry.Permanent(err)
		}
		return ct, err
	}, r.notify(ctx, "head"))
	if err != nil {
		return nil, categorize(err, apperr.ErrTransient)
	}

	if !ref.Allows(contentType) {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnsupportedContent, contentType)
	}
	log.Debug("Direct link %s declares %s", ref.Link(), contentType)

	staged := r.stagingPath(contentType)
	defer r.removeStaged(ctx, staged)

	err = r.gated(ctx, func() error {
		_, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (int64, error) {
			body, err := r.fetcher.Stream(ctx, ref.Link())
			if err != nil {
				if isFinal(err) {
					return 0, retry.Permanent(err)
				}
				return 0, err
			}
			defer body.Close()

			n, err := r.save(staged, body)
			if errors.Is(err, errTooLarge) {
				return n, retry.Permanent(err)
			}
			return n, err
		}, r.notify(ctx, "download"))
		return err
	})
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrUnsupportedContent, err)
		}
		return nil, categorize(err, apperr.ErrTransient)
	}

	return r.transcode(ctx, staged)
}

func (r *Resolver) resolveUpload(ctx context.Context, ref Reference) (*Asset, error) {
	log := logger.FromContext(ctx, r.log)

	contentType, body, err := Sniff(ref.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}
	if !ref.Allows(contentType) {
		return nil, fmt.Errorf("%w: upload detected as %q", apperr.ErrUnsupportedContent, contentType)
	}
	log.Debug("Upload %q sniffed as %s", ref.Filename(), contentType)

	staged := r.stagingPath(contentType)
	defer r.removeStaged(ctx, staged)

	err = r.gated(ctx, func() error {
		_, err := r.save(staged, body)
		return err
	})
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrUnsupportedContent, err)
		}
		return nil, err
	}

	return r.transcode(ctx, staged)
}

func (r *Resolver) transcode(ctx context.Context, staged string) (*Asset, error) {
	start := time.Now()
	defer metrics.ObserveStage("transcode", start)

	asset := NewAsset(r.opts.OutputDir)
	if err := r.transcoder.Transcode(ctx, staged, asset.Path); err != nil {
		r.discard(ctx, asset)
		return nil, categorize(err, apperr.ErrProcessFailure)
	}
	return asset, nil
}

func (r *Resolver) gated(ctx context.Context, fn func() error) error {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.gate.Release(1)

	metrics.DownloadsInFlight.Inc()
	defer metrics.DownloadsInFlight.Dec()

	return fn()
}

// save copies src into path in fixed-size chunks, truncating any previous
// attempt.
func (r *Resolver) save(path string, src io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, r.opts.ChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			written += int64(n)
			if r.opts.MaxBytes > 0 && written > r.opts.MaxBytes {
				return written, errTooLarge
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write staging file: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	if written == 0 {
		return 0, fmt.Errorf("%w: empty body", apperr.ErrUnsupportedContent)
	}
	return written, f.Close()
}

func (r *Resolver) stagingPath(contentType string) string {
	return filepath.Join(r.opts.StagingDir, uuid.NewString()+ExtensionFor(contentType))
}

func (r *Resolver) removeStaged(ctx context.Context, path string) {
	if err := removeFile(path); err != nil {
		logger.FromContext(ctx, r.log).Warn("Failed to remove staging file %s: %v", path, err)
	}
}

func (r *Resolver) discard(ctx context.Context, a *Asset) {
	if err := a.Remove(); err != nil {
		logger.FromContext(ctx, r.log).Warn("Failed to remove asset %s: %v", a.Path, err)
	}
}

func (r *Resolver) notify(ctx context.Context, op string) retry.Option {
	return retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		metrics.RetriesTotal.WithLabelValues(op).Inc()
		logger.FromContext(ctx, r.log).Debug("%s attempt %d failed, retrying in %s: %v", op, attempt, wait, err)
	})
}

// isFinal reports errors that retrying cannot fix.
func isFinal(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrUnsupportedContent) ||
		errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrProcessFailure)
}

// categorize leaves errors that already carry a category (or a context
// error) alone and files everything else under fallback.
func categorize(err error, fallback error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if kind, _ := apperr.Classify(err); kind != apperr.KindInternal {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
