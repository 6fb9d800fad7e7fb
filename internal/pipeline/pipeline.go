// Package pipeline runs one recognition request end to end: resolve the
// reference to an asset, cut it into clips, recognize them and normalize
// the chosen track.
package pipeline

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/media"
	"songrecognition/internal/metadata"
	"songrecognition/internal/metrics"
	"songrecognition/internal/recognition"
	"songrecognition/internal/segment"
	"songrecognition/internal/telemetry"
)

// Hooks observe the progress of a single run. All fields are optional.
type Hooks struct {
	OnResolved func(asset *media.Asset)
	// OnClips is called with the number of planned clips before
	// recognition starts.
	OnClips func(total int)
	// OnClip is called once per recognized clip.
	OnClip func(res recognition.ClipResult)
}

// Resolver turns a reference into a local normalized asset.
type Resolver interface {
	Resolve(ctx context.Context, ref media.Reference) (*media.Asset, error)
}

// Segmenter cuts an asset into clips.
type Segmenter interface {
	Plan(ctx context.Context, asset *media.Asset) ([]segment.Window, error)
	Clips(ctx context.Context, asset *media.Asset, windows []segment.Window) iter.Seq2[segment.Clip, error]
}

// Pipeline holds the process-wide collaborators. It is safe for concurrent
// use; every Run owns its asset.
type Pipeline struct {
	resolver  Resolver
	segmenter Segmenter
	backend   recognition.Backend
	opts      recognition.Options
	log       *logger.Logger
	tracer    trace.Tracer
}

// New creates a Pipeline. opts.OnClip is ignored; use Hooks.OnClip.
func New(r Resolver, s Segmenter, b recognition.Backend, opts recognition.Options, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	opts.OnClip = nil
	return &Pipeline{
		resolver:  r,
		segmenter: s,
		backend:   b,
		opts:      opts,
		log:       log,
		tracer:    telemetry.Tracer("songrec.pipeline"),
	}
}

// Run executes the full recognition pipeline: resolve → segment → recognize
// → lookup → normalize. The asset is removed before Run returns, on every
// path.
func (p *Pipeline) Run(ctx context.Context, ref media.Reference, hooks Hooks) (report metadata.Report, err error) {
	log := logger.FromContext(ctx, p.log)
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "songrec.recognize", trace.WithAttributes(
		attribute.String("reference.kind", ref.Kind().String()),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			kind, _ := apperr.Classify(err)
			outcome = string(kind)
		}
		metrics.RecognitionsTotal.WithLabelValues(ref.Kind().String(), outcome).Inc()
		metrics.ObserveStage("total", start)
		span.SetAttributes(attribute.String("outcome", outcome))
		telemetry.EndSpan(span, err)
	}()

	log.Info("Recognizing %s", ref)

	asset, err := p.resolve(ctx, ref)
	if err != nil {
		return metadata.Report{}, err
	}
	defer func() {
		if rerr := asset.Remove(); rerr != nil {
			log.Warn("Failed to remove %s: %v", asset.Path, rerr)
		}
	}()
	if hooks.OnResolved != nil {
		hooks.OnResolved(asset)
	}

	windows, err := p.segmenter.Plan(ctx, asset)
	if err != nil {
		return metadata.Report{}, err
	}
	if hooks.OnClips != nil {
		hooks.OnClips(len(windows))
	}

	opts := p.opts
	opts.OnClip = hooks.OnClip
	agg := recognition.NewAggregator(p.backend, opts, p.log)

	aggCtx, aggSpan := p.tracer.Start(ctx, "songrec.aggregate")
	report, stats, err := agg.AggregateStats(aggCtx, p.segmenter.Clips(aggCtx, asset, windows))
	aggSpan.SetAttributes(
		attribute.Int("clips", stats.Clips),
		attribute.Int("clips.failed", stats.Failed),
		attribute.Int("ids", len(stats.IDs)),
	)
	telemetry.EndSpan(aggSpan, err)
	if err != nil {
		return metadata.Report{}, err
	}

	log.Info("Recognized %q by %q from %d clips in %s", report.Title, report.Artist, stats.Clips, time.Since(start).Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) resolve(ctx context.Context, ref media.Reference) (*media.Asset, error) {
	ctx, span := p.tracer.Start(ctx, "songrec.resolve")
	asset, err := p.resolver.Resolve(ctx, ref)
	telemetry.EndSpan(span, err)
	return asset, err
}
