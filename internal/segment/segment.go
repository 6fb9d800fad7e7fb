// Package segment splits an audio asset into fixed-length clips for
// recognition.
package segment

import (
	"context"
	"fmt"
	"iter"
	"time"

	"songrecognition/internal/apperr"
	"songrecognition/internal/media"
)

// DefaultClipLength is the window size used when none is configured.
const DefaultClipLength = 10 * time.Second

// Window is the half-open interval [Start, End) of an asset.
type Window struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Length returns End - Start.
func (w Window) Length() time.Duration {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("clip %d: %s-%s", w.Index, w.Start, w.End)
}

// Clip is the encoded audio of one window. Err is set, and Data empty, when
// the window could not be encoded.
type Clip struct {
	Window
	Data []byte
	Err  error
}

// Windows splits [0, total) into consecutive windows of clipLen. Every
// window but the last is exactly clipLen long; the last one ends at total.
// It returns nil when either argument is not positive.
func Windows(total, clipLen time.Duration) []Window {
	if total <= 0 || clipLen <= 0 {
		return nil
	}
	n := int((total + clipLen - 1) / clipLen)
	windows := make([]Window, 0, n)
	for start := time.Duration(0); start < total; start += clipLen {
		windows = append(windows, Window{
			Index: len(windows),
			Start: start,
			End:   min(start+clipLen, total),
		})
	}
	return windows
}

// Prober reports the playing time of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Encoder produces the encoded bytes of one window of an audio file.
type Encoder interface {
	EncodeClip(ctx context.Context, path string, start, length time.Duration) ([]byte, error)
}

// Segmenter lazily cuts assets into clips.
type Segmenter struct {
	prober     Prober
	encoder    Encoder
	clipLength time.Duration
}

// New creates a Segmenter. A non-positive clipLength uses DefaultClipLength.
func New(p Prober, e Encoder, clipLength time.Duration) *Segmenter {
	if clipLength <= 0 {
		clipLength = DefaultClipLength
	}
	return &Segmenter{prober: p, encoder: e, clipLength: clipLength}
}

// ClipLength returns the configured window size.
func (s *Segmenter) ClipLength() time.Duration {
	return s.clipLength
}

// Plan returns the windows the asset will be cut into.
func (s *Segmenter) Plan(ctx context.Context, asset *media.Asset) ([]Window, error) {
	d, err := s.prober.Duration(ctx, asset.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read duration of %s: %w", asset.Path, err)
	}
	return Windows(d.Truncate(time.Millisecond), s.clipLength), nil
}

// Segment returns a sequence of clips in order. Nothing is encoded until the
// sequence is ranged over, and each clip is encoded only when requested. The
// sequence can be ranged over again and yields the same windows. A failed
// duration probe or cancellation ends the sequence with an error.
func (s *Segmenter) Segment(ctx context.Context, asset *media.Asset) iter.Seq2[Clip, error] {
	return func(yield func(Clip, error) bool) {
		windows, err := s.Plan(ctx, asset)
		if err != nil {
			yield(Clip{}, err)
			return
		}
		s.Clips(ctx, asset, windows)(yield)
	}
}

// Clips is Segment over windows that were already planned. A window that
// fails to encode is yielded with Clip.Err set and the sequence continues.
func (s *Segmenter) Clips(ctx context.Context, asset *media.Asset, windows []Window) iter.Seq2[Clip, error] {
	return func(yield func(Clip, error) bool) {
		for _, w := range windows {
			if err := ctx.Err(); err != nil {
				yield(Clip{}, err)
				return
			}

			data, err := s.encoder.EncodeClip(ctx, asset.Path, w.Start, w.Length())
			if err == nil && len(data) == 0 {
				err = fmt.Errorf("%w: %s is empty", apperr.ErrProcessFailure, w)
			}
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					yield(Clip{}, cerr)
					return
				}
				if !yield(Clip{Window: w, Err: err}, nil) {
					return
				}
				continue
			}

			if !yield(Clip{Window: w, Data: data}, nil) {
				return
			}
		}
	}
}
