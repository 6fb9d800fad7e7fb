package recognition

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"songrecognition/internal/apperr"
	"songrecognition/internal/metadata"
	"songrecognition/internal/retry"
	"songrecognition/internal/segment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastRetry = retry.Policy{Retries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

// scriptedBackend answers Recognize by clip payload.
type scriptedBackend struct {
	mu        sync.Mutex
	answers   map[string][]int64
	failing   map[string]bool
	tracks    map[int64]metadata.Track
	lookupErr error
	calls     map[string]int
	lookups   []int64
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		answers: map[string][]int64{},
		failing: map[string]bool{},
		tracks:  map[int64]metadata.Track{},
		calls:   map[string]int{},
	}
}

func (b *scriptedBackend) Recognize(_ context.Context, clip []byte) (Candidate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := string(clip)
	b.calls[key]++
	if b.failing[key] {
		return Candidate{}, fmt.Errorf("recognize %s: 503 service unavailable", key)
	}
	var c Candidate
	for _, id := range b.answers[key] {
		c.Matches = append(c.Matches, Match{ID: id})
	}
	return c, nil
}

func (b *scriptedBackend) Lookup(_ context.Context, id int64) (metadata.Track, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = append(b.lookups, id)
	if b.lookupErr != nil {
		return metadata.Track{}, b.lookupErr
	}
	t, ok := b.tracks[id]
	if !ok {
		return metadata.Track{}, fmt.Errorf("%w: no track %d", apperr.ErrNoMatch, id)
	}
	return t, nil
}

func clipSeq(names ...string) iter.Seq2[segment.Clip, error] {
	return func(yield func(segment.Clip, error) bool) {
		for i, name := range names {
			clip := segment.Clip{
				Window: segment.Window{Index: i, Start: time.Duration(i) * 10 * time.Second, End: time.Duration(i+1) * 10 * time.Second},
				Data:   []byte(name),
			}
			if !yield(clip, nil) {
				return
			}
		}
	}
}

func TestAggregateEmptySequence(t *testing.T) {
	b := newScriptedBackend()
	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

	_, err := agg.Aggregate(context.Background(), clipSeq())
	assert.ErrorIs(t, err, apperr.ErrNoMatch)
	assert.Empty(t, b.lookups)
}

func TestAggregateAllClipsFail(t *testing.T) {
	b := newScriptedBackend()
	b.failing["a"], b.failing["b"] = true, true
	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

	_, err := agg.Aggregate(context.Background(), clipSeq("a", "b"))
	assert.ErrorIs(t, err, apperr.ErrNoMatch, "failing clips are a no-match, not a fault")
	assert.Equal(t, 3, b.calls["a"])
	assert.Equal(t, 3, b.calls["b"])
	assert.Empty(t, b.lookups)
}

func TestAggregateSkipsUnencodableClip(t *testing.T) {
	b := newScriptedBackend()
	b.answers["a"] = []int64{100}
	b.answers["c"] = []int64{104}
	b.tracks[102] = metadata.Track{Key: "102", Title: "Found"}

	clips := func(yield func(segment.Clip, error) bool) {
		for clip, err := range clipSeq("a", "b", "c") {
			if clip.Index == 1 {
				clip.Data = nil
				clip.Err = fmt.Errorf("%w: encoder crashed", apperr.ErrProcessFailure)
			}
			if !yield(clip, err) {
				return
			}
		}
	}

	var results []ClipResult
	agg := NewAggregator(b, Options{Retry: fastRetry, OnClip: func(r ClipResult) { results = append(results, r) }}, nil)
	report, stats, err := agg.AggregateStats(context.Background(), clips)
	require.NoError(t, err)

	assert.Equal(t, "Found", report.Title)
	assert.Equal(t, 3, stats.Clips)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []int64{102}, b.lookups)
	assert.Zero(t, b.calls["b"]+b.calls[""], "an unencoded clip is never sent")
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[1].Err, apperr.ErrProcessFailure)
}

func TestAggregateNoMatches(t *testing.T) {
	b := newScriptedBackend()
	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

	_, err := agg.Aggregate(context.Background(), clipSeq("silence", "noise"))
	assert.ErrorIs(t, err, apperr.ErrNoMatch)
	assert.Equal(t, 1, b.calls["silence"], "an empty candidate is an answer, not a failure")
}

func TestAggregateMeanOfAllIDs(t *testing.T) {
	b := newScriptedBackend()
	b.answers["a"] = []int64{100}
	b.answers["b"] = []int64{102}
	b.answers["c"] = []int64{104}
	b.tracks[102] = metadata.Track{Key: "102", Title: "Middle"}
	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

	report, stats, err := agg.AggregateStats(context.Background(), clipSeq("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "Middle", report.Title)
	assert.Equal(t, []int64{102}, b.lookups, "exactly one lookup of the mean")
	assert.Equal(t, int64(102), stats.Representative)
	assert.Equal(t, 3, stats.Clips)
}

func TestAggregateCollectsEveryMatch(t *testing.T) {
	b := newScriptedBackend()
	b.answers["a"] = []int64{10, 20}
	b.answers["b"] = []int64{30}
	b.tracks[20] = metadata.Track{Title: "Twenty"}
	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

	_, stats, err := agg.AggregateStats(context.Background(), clipSeq("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, stats.IDs)
	assert.Equal(t, []int64{20}, b.lookups)
}

func TestAggregateEndToEnd(t *testing.T) {
	b := newScriptedBackend()
	b.answers["clip1"] = []int64{555}
	b.failing["clip2"] = true
	b.answers["clip3"] = []int64{555}
	b.tracks[555] = metadata.Track{Key: "555", Title: "Found", Artists: []metadata.Artist{{Name: "Band"}}}

	var seen []ClipResult
	agg := NewAggregator(b, Options{
		Retry:  fastRetry,
		OnClip: func(r ClipResult) { seen = append(seen, r) },
	}, nil)

	report, stats, err := agg.AggregateStats(context.Background(), clipSeq("clip1", "clip2", "clip3"))
	require.NoError(t, err)
	assert.Equal(t, "Found", report.Title)
	assert.Equal(t, "Band", report.Artist)
	assert.Equal(t, []int64{555}, b.lookups)
	assert.Equal(t, 1, stats.Failed)

	require.Len(t, seen, 3)
	assert.Error(t, seen[1].Err)
	assert.Equal(t, []int64{555}, seen[2].IDs)
}

func TestAggregateSequenceErrorAborts(t *testing.T) {
	b := newScriptedBackend()
	b.answers["a"] = []int64{1}
	boom := errors.New("segmenter crashed")

	seq := func(yield func(segment.Clip, error) bool) {
		if !yield(segment.Clip{Data: []byte("a")}, nil) {
			return
		}
		yield(segment.Clip{}, boom)
	}

	agg := NewAggregator(b, Options{Retry: fastRetry}, nil)
	_, err := agg.Aggregate(context.Background(), seq)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.lookups)
}

func TestAggregateLookupFailures(t *testing.T) {
	t.Run("unknown id is a no-match", func(t *testing.T) {
		b := newScriptedBackend()
		b.answers["a"] = []int64{7}
		agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

		_, err := agg.Aggregate(context.Background(), clipSeq("a"))
		assert.ErrorIs(t, err, apperr.ErrNoMatch)
		assert.Len(t, b.lookups, 1, "a missing track is not retried")
	})

	t.Run("backend down is transient", func(t *testing.T) {
		b := newScriptedBackend()
		b.answers["a"] = []int64{7}
		b.lookupErr = errors.New("connection refused")
		agg := NewAggregator(b, Options{Retry: fastRetry}, nil)

		_, err := agg.Aggregate(context.Background(), clipSeq("a"))
		assert.ErrorIs(t, err, apperr.ErrTransient)
		assert.Len(t, b.lookups, 3)
	})
}

func TestAggregateParallelMatchesSerial(t *testing.T) {
	names := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	build := func() *scriptedBackend {
		b := newScriptedBackend()
		for i, n := range names {
			if i%3 == 1 {
				b.failing[n] = true
				continue
			}
			b.answers[n] = []int64{int64(1000 + i)}
		}
		for id := int64(1000); id < 1010; id++ {
			b.tracks[id] = metadata.Track{Key: fmt.Sprint(id)}
		}
		return b
	}

	serial := build()
	_, serialStats, err := NewAggregator(serial, Options{Retry: fastRetry}, nil).
		AggregateStats(context.Background(), clipSeq(names...))
	require.NoError(t, err)

	parallel := build()
	var mu sync.Mutex
	var observed int
	_, parallelStats, err := NewAggregator(parallel, Options{
		Retry:       fastRetry,
		Concurrency: 4,
		OnClip: func(ClipResult) {
			mu.Lock()
			observed++
			mu.Unlock()
		},
	}, nil).AggregateStats(context.Background(), clipSeq(names...))
	require.NoError(t, err)

	assert.Equal(t, serialStats, parallelStats)
	assert.Equal(t, serial.lookups, parallel.lookups)
	assert.Equal(t, len(names), observed)
}

func TestRepresentative(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int64
		strategy Consensus
		want     int64
		wantOK   bool
	}{
		{name: "empty", ids: nil, strategy: ConsensusMean},
		{name: "single", ids: []int64{42}, strategy: ConsensusMean, want: 42, wantOK: true},
		{name: "odd mean", ids: []int64{100, 102, 104}, strategy: ConsensusMean, want: 102, wantOK: true},
		{name: "half rounds up", ids: []int64{1, 2}, strategy: ConsensusMean, want: 2, wantOK: true},
		{name: "order independent", ids: []int64{104, 100, 102}, strategy: ConsensusMean, want: 102, wantOK: true},
		{name: "large ids", ids: []int64{549679333, 549679333}, strategy: ConsensusMean, want: 549679333, wantOK: true},
		{name: "outlier pulls mean", ids: []int64{10, 10, 10, 50}, strategy: ConsensusMean, want: 20, wantOK: true},
		{name: "mode ignores outlier", ids: []int64{10, 10, 10, 50}, strategy: ConsensusModeMean, want: 10, wantOK: true},
		{name: "tied modes averaged", ids: []int64{10, 10, 20, 20, 99}, strategy: ConsensusModeMean, want: 15, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Representative(tt.ids, tt.strategy)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Representative(%v, %s) = %d, %v; want %d, %v", tt.ids, tt.strategy, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseConsensus(t *testing.T) {
	for _, s := range []string{"", "mean", "mode-mean"} {
		if _, err := ParseConsensus(s); err != nil {
			t.Errorf("ParseConsensus(%q) error: %v", s, err)
		}
	}
	if _, err := ParseConsensus("median"); err == nil {
		t.Error("ParseConsensus(median) should fail")
	}
}
