// Package recognition combines per-clip recognition results into a single
// track decision.
package recognition

import (
	"context"
	"fmt"
	"math"
	"slices"

	"songrecognition/internal/metadata"
)

// Match is one candidate track reported for a clip.
type Match struct {
	ID int64
}

// Candidate is the backend answer for one clip. An empty candidate is a
// valid answer meaning "nothing recognized".
type Candidate struct {
	Matches []Match
}

// IDs returns the match ids in backend order.
func (c Candidate) IDs() []int64 {
	ids := make([]int64, 0, len(c.Matches))
	for _, m := range c.Matches {
		ids = append(ids, m.ID)
	}
	return ids
}

// Backend is the recognition service.
type Backend interface {
	// Recognize identifies the encoded clip.
	Recognize(ctx context.Context, clip []byte) (Candidate, error)
	// Lookup fetches the full record of a track id.
	Lookup(ctx context.Context, id int64) (metadata.Track, error)
}

// Consensus selects how collected ids are reduced to one.
type Consensus string

const (
	// ConsensusMean takes the arithmetic mean of all ids.
	ConsensusMean Consensus = "mean"
	// ConsensusModeMean takes the mean of the most frequent ids only.
	ConsensusModeMean Consensus = "mode-mean"
)

// ParseConsensus validates a configured strategy name.
func ParseConsensus(s string) (Consensus, error) {
	switch Consensus(s) {
	case "", ConsensusMean:
		return ConsensusMean, nil
	case ConsensusModeMean:
		return ConsensusModeMean, nil
	}
	return "", fmt.Errorf("unknown consensus strategy %q, valid: %s, %s", s, ConsensusMean, ConsensusModeMean)
}

// Representative reduces ids to one id. The result does not depend on the
// order of ids. It returns false for an empty slice.
func Representative(ids []int64, strategy Consensus) (int64, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	if strategy == ConsensusModeMean {
		ids = modes(ids)
	}
	return mean(ids), true
}

// mean is rounded half away from zero. The sum is accumulated in float64
// so that large ids cannot overflow.
func mean(ids []int64) int64 {
	var sum float64
	for _, id := range ids {
		sum += float64(id)
	}
	return int64(math.Round(sum / float64(len(ids))))
}

func modes(ids []int64) []int64 {
	counts := make(map[int64]int, len(ids))
	best := 0
	for _, id := range ids {
		counts[id]++
		best = max(best, counts[id])
	}
	var out []int64
	for id, n := range counts {
		if n == best {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
