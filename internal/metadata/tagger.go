package metadata

import (
	"fmt"

	"go.senan.xyz/taglib"
)

// WriteTags writes the recognized metadata into an audio file's tags. Empty
// report fields leave the existing tag untouched.
func WriteTags(path string, r Report) error {
	tags := make(map[string][]string)

	if r.Title != "" {
		tags[taglib.Title] = []string{r.Title}
	}
	artist := r.Artist
	if artist == "" {
		artist = r.Subtitle
	}
	if artist != "" {
		tags[taglib.Artist] = []string{artist}
	}
	if r.Album != "" {
		tags[taglib.Album] = []string{r.Album}
	}
	if r.Released != "" {
		tags[taglib.Date] = []string{r.Released}
	}
	if r.Genre != "" {
		tags[taglib.Genre] = []string{r.Genre}
	}
	if r.ISRC != "" {
		tags[taglib.ISRC] = []string{r.ISRC}
	}

	if len(tags) == 0 {
		return nil
	}
	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}
