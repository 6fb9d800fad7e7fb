package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func loadTrack(t *testing.T, name string) Track {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var track Track
	if err := json.Unmarshal(data, &track); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	return track
}

func TestNormalizeFullRecord(t *testing.T) {
	got := Normalize(loadTrack(t, "track_full.json"))

	want := Report{
		ID:       "549679333",
		Title:    "Blinding Lights",
		Subtitle: "The Weeknd",
		Artist:   "The Weeknd",
		Album:    "After Hours",
		Label:    "Republic Records",
		Released: "2020",
		Genre:    "R&B/Soul",
		CoverArt: "https://is1-ssl.mzstatic.com/image/thumb/Music/400x400cc.jpg",
		ISRC:     "USUG11904206",
		Links: Links{
			Spotify:    "spotify:search:Blinding%20Lights%20The%20Weeknd",
			Deezer:     "deezer-query://www.deezer.com/search/Blinding%20Lights",
			AppleMusic: "https://music.apple.com/us/album/blinding-lights/1499378108?i=1499378615",
		},
		URL: "https://www.shazam.com/track/549679333/blinding-lights",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		want  Report
	}{
		{
			name:  "empty record",
			track: Track{},
			want:  Report{},
		},
		{
			name:  "no artists",
			track: Track{Title: "Untitled", Subtitle: "Someone"},
			want:  Report{Title: "Untitled", Subtitle: "Someone"},
		},
		{
			name:  "artist alias only",
			track: Track{Artists: []Artist{{Alias: "the-weeknd"}}},
			want:  Report{Artist: "the-weeknd"},
		},
		{
			name:  "sections without metadata rows",
			track: Track{Sections: []Section{{Type: "SONG"}}},
			want:  Report{},
		},
		{
			name: "album in second section is ignored",
			track: Track{Sections: []Section{
				{Type: "SONG"},
				{Type: "LYRICS", Metadata: []SectionRecord{{Title: "Album", Text: "Wrong"}}},
			}},
			want: Report{},
		},
		{
			name: "provider without actions",
			track: Track{Hub: &Hub{Providers: []Provider{
				{Type: "SPOTIFY"},
				{Type: "DEEZER", Actions: []Action{{URI: "deezer-query://x"}}},
			}}},
			want: Report{Links: Links{Deezer: "deezer-query://x"}},
		},
		{
			name:  "nil nested objects",
			track: Track{Genres: nil, Images: nil, Hub: nil},
			want:  Report{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.track)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeUnicode(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	track := Track{Title: "  Cafe\u0301 del Mar ", Artists: []Artist{{Name: "Beyonce\u0301"}}}

	got := Normalize(track)
	if got.Title != "Caf\u00e9 del Mar" {
		t.Errorf("Title = %q, want composed form", got.Title)
	}
	if got.Artist != "Beyonc\u00e9" {
		t.Errorf("Artist = %q, want composed form", got.Artist)
	}
}

func TestNormalizeIsStable(t *testing.T) {
	track := loadTrack(t, "track_full.json")
	first := Normalize(track)
	second := Normalize(track)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Normalize() not stable (-first +second):\n%s", diff)
	}
}

func TestReportJSONOmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(Report{Title: "Only Title"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `{"title":"Only Title"}` {
		t.Errorf("Marshal() = %s", data)
	}
}
