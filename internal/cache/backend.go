package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"songrecognition/internal/logger"
	"songrecognition/internal/metadata"
	"songrecognition/internal/metrics"
	"songrecognition/internal/recognition"
)

const keyPrefix = "songrec:track:"

// Backend wraps a recognition.Backend and serves Lookup from a Store.
// Recognize is passed through untouched. Store failures degrade to a miss.
type Backend struct {
	next  recognition.Backend
	store Store
	ttl   time.Duration
	log   *logger.Logger
}

var _ recognition.Backend = (*Backend)(nil)

// NewBackend returns next with its track lookups cached in store for ttl.
func NewBackend(next recognition.Backend, store Store, ttl time.Duration, log *logger.Logger) *Backend {
	if log == nil {
		log = logger.Nop()
	}
	return &Backend{next: next, store: store, ttl: ttl, log: log}
}

func (b *Backend) Recognize(ctx context.Context, clip []byte) (recognition.Candidate, error) {
	return b.next.Recognize(ctx, clip)
}

func (b *Backend) Lookup(ctx context.Context, id int64) (metadata.Track, error) {
	key := keyPrefix + strconv.FormatInt(id, 10)

	data, ok, err := b.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.LookupCacheTotal.WithLabelValues("error").Inc()
		b.log.Warn("track cache read failed: %v", err)
	case ok:
		var track metadata.Track
		if err := json.Unmarshal(data, &track); err == nil {
			metrics.LookupCacheTotal.WithLabelValues("hit").Inc()
			return track, nil
		}
		metrics.LookupCacheTotal.WithLabelValues("error").Inc()
		b.log.Warn("discarding undecodable cache entry %s", key)
	default:
		metrics.LookupCacheTotal.WithLabelValues("miss").Inc()
	}

	track, err := b.next.Lookup(ctx, id)
	if err != nil {
		return metadata.Track{}, err
	}

	if data, err := json.Marshal(track); err == nil {
		if err := b.store.Set(ctx, key, data, b.ttl); err != nil {
			b.log.Warn("track cache write failed: %v", err)
		}
	}
	return track, nil
}
