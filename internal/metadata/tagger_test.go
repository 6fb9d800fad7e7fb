package metadata

import (
	"os/exec"
	"path/filepath"
	"testing"

	"go.senan.xyz/taglib"
)

// createTestAudioFile generates a minimal MP3 using ffmpeg.
// Skips the test if ffmpeg is not available.
func createTestAudioFile(t *testing.T, dir string) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping tagger test")
	}

	path := filepath.Join(dir, "test.mp3")
	cmd := exec.Command("ffmpeg", "-f", "lavfi", "-i", "anullsrc=r=44100:cl=mono", "-t", "0.1", "-q:a", "9", path)
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to create test audio file: %v", err)
	}
	return path
}

func TestWriteTags(t *testing.T) {
	path := createTestAudioFile(t, t.TempDir())

	report := Report{
		Title:    "Blinding Lights",
		Subtitle: "The Weeknd",
		Album:    "After Hours",
		Released: "2020",
		Genre:    "R&B/Soul",
	}

	if err := WriteTags(path, report); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		t.Fatalf("failed to read tags: %v", err)
	}

	checks := map[string]string{
		taglib.Title:  "Blinding Lights",
		taglib.Artist: "The Weeknd",
		taglib.Album:  "After Hours",
		taglib.Date:   "2020",
		taglib.Genre:  "R&B/Soul",
	}

	for key, want := range checks {
		got := ""
		if vals, ok := tags[key]; ok && len(vals) > 0 {
			got = vals[0]
		}
		if got != want {
			t.Errorf("tag %s = %q, want %q", key, got, want)
		}
	}
}

func TestWriteTagsEmptyReport(t *testing.T) {
	if err := WriteTags(filepath.Join(t.TempDir(), "missing.mp3"), Report{}); err != nil {
		t.Errorf("WriteTags(empty) error: %v", err)
	}
}
