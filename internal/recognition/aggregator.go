package recognition

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/metadata"
	"songrecognition/internal/metrics"
	"songrecognition/internal/retry"
	"songrecognition/internal/segment"
)

// ClipResult reports what happened to one clip.
type ClipResult struct {
	segment.Window
	IDs []int64
	Err error
}

// Options configures an Aggregator.
type Options struct {
	Retry retry.Policy
	// Concurrency is the number of clips recognized at once. Values below
	// 2 recognize clips one after another.
	Concurrency int
	Consensus   Consensus
	// OnClip, when set, is called once per clip after recognition. Calls
	// may come from several goroutines when Concurrency > 1.
	OnClip func(ClipResult)
}

// Stats summarizes one aggregation pass.
type Stats struct {
	Clips          int
	Failed         int
	IDs            []int64
	Representative int64
}

// Aggregator turns a clip sequence into one recognized track.
type Aggregator struct {
	backend Backend
	opts    Options
	log     *logger.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(b Backend, opts Options, log *logger.Logger) *Aggregator {
	if opts.Consensus == "" {
		opts.Consensus = ConsensusMean
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Aggregator{backend: b, opts: opts, log: log}
}

// Aggregate recognizes every clip, reduces all collected ids to one and
// returns the normalized record of that id. A clip whose recognition keeps
// failing is skipped. When no clip yields a match it returns
// apperr.ErrNoMatch. An error from the clip sequence itself aborts.
func (a *Aggregator) Aggregate(ctx context.Context, clips iter.Seq2[segment.Clip, error]) (metadata.Report, error) {
	report, _, err := a.AggregateStats(ctx, clips)
	return report, err
}

// AggregateStats is Aggregate that also returns what was collected.
func (a *Aggregator) AggregateStats(ctx context.Context, clips iter.Seq2[segment.Clip, error]) (metadata.Report, Stats, error) {
	log := logger.FromContext(ctx, a.log)

	stats, err := a.Collect(ctx, clips)
	if err != nil {
		return metadata.Report{}, stats, err
	}

	id, ok := Representative(stats.IDs, a.opts.Consensus)
	if !ok {
		log.Info("No match in %d clips (%d failed)", stats.Clips, stats.Failed)
		return metadata.Report{}, stats, fmt.Errorf("%w in %d clips", apperr.ErrNoMatch, stats.Clips)
	}
	stats.Representative = id
	log.Debug("Collected ids %v, representative %d (%s)", stats.IDs, id, a.opts.Consensus)

	start := time.Now()
	track, err := retry.Do(ctx, a.opts.Retry, func(ctx context.Context) (metadata.Track, error) {
		t, err := a.backend.Lookup(ctx, id)
		if errors.Is(err, apperr.ErrNoMatch) || errors.Is(err, apperr.ErrNotFound) {
			return t, retry.Permanent(err)
		}
		return t, err
	}, a.notify(ctx, "lookup"))
	metrics.ObserveStage("lookup", start)
	if err != nil {
		if errors.Is(err, apperr.ErrNoMatch) || errors.Is(err, apperr.ErrNotFound) {
			return metadata.Report{}, stats, fmt.Errorf("%w: track %d: %v", apperr.ErrNoMatch, id, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return metadata.Report{}, stats, err
		}
		return metadata.Report{}, stats, fmt.Errorf("%w: lookup of track %d: %w", apperr.ErrTransient, id, err)
	}

	return metadata.Normalize(track), stats, nil
}

// Collect recognizes every clip and gathers all match ids.
func (a *Aggregator) Collect(ctx context.Context, clips iter.Seq2[segment.Clip, error]) (Stats, error) {
	start := time.Now()
	defer metrics.ObserveStage("recognize", start)

	if a.opts.Concurrency > 1 {
		return a.collectParallel(ctx, clips)
	}

	var stats Stats
	for clip, err := range clips {
		if err != nil {
			return stats, err
		}
		stats.add(a.recognize(ctx, clip))
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// collectParallel keeps clip generation sequential and fans recognition out.
// Goroutines never return an error so one clip cannot cancel its siblings.
func (a *Aggregator) collectParallel(ctx context.Context, clips iter.Seq2[segment.Clip, error]) (Stats, error) {
	var (
		mu      sync.Mutex
		results []ClipResult
		g       errgroup.Group
	)
	g.SetLimit(a.opts.Concurrency)

	var seqErr error
	for clip, err := range clips {
		if err != nil {
			seqErr = err
			break
		}
		g.Go(func() error {
			res := a.recognize(ctx, clip)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var stats Stats
	if seqErr != nil {
		return stats, seqErr
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	// Restore sequence order so ids read the same as a serial run.
	slices.SortFunc(results, func(x, y ClipResult) int { return cmp.Compare(x.Index, y.Index) })
	for _, res := range results {
		stats.add(res)
	}
	return stats, nil
}

func (a *Aggregator) recognize(ctx context.Context, clip segment.Clip) ClipResult {
	log := logger.FromContext(ctx, a.log)

	var cand Candidate
	err := clip.Err
	if err == nil {
		cand, err = retry.Do(ctx, a.opts.Retry, func(ctx context.Context) (Candidate, error) {
			return a.backend.Recognize(ctx, clip.Data)
		}, a.notify(ctx, "recognize"))
	}

	res := ClipResult{Window: clip.Window}
	switch {
	case err != nil:
		res.Err = err
		metrics.ClipsTotal.WithLabelValues("failed").Inc()
		log.Warn("Recognition of %s failed: %v", clip.Window, err)
	case len(cand.Matches) == 0:
		metrics.ClipsTotal.WithLabelValues("empty").Inc()
		log.Debug("No match for %s", clip.Window)
	default:
		res.IDs = cand.IDs()
		metrics.ClipsTotal.WithLabelValues("matched").Inc()
		log.Debug("Matches for %s: %v", clip.Window, res.IDs)
	}

	if a.opts.OnClip != nil {
		a.opts.OnClip(res)
	}
	return res
}

func (a *Aggregator) notify(ctx context.Context, op string) retry.Option {
	return retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		metrics.RetriesTotal.WithLabelValues(op).Inc()
		logger.FromContext(ctx, a.log).Debug("%s attempt %d failed, retrying in %s: %v", op, attempt, wait, err)
	})
}

func (s *Stats) add(res ClipResult) {
	s.Clips++
	if res.Err != nil {
		s.Failed++
		return
	}
	s.IDs = append(s.IDs, res.IDs...)
}
