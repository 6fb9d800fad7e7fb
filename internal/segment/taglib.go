package segment

import (
	"context"
	"fmt"
	"time"

	"go.senan.xyz/taglib"
)

// TaglibProber reads the duration from the file's audio properties and asks
// Fallback when taglib cannot tell.
type TaglibProber struct {
	Fallback Prober
}

func (p TaglibProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	props, err := taglib.ReadProperties(path)
	if err == nil && props.Length > 0 {
		return props.Length, nil
	}
	if p.Fallback != nil {
		return p.Fallback.Duration(ctx, path)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read audio properties: %w", err)
	}
	return 0, fmt.Errorf("audio properties report no duration for %s", path)
}
