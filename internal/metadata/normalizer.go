package metadata

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Row titles in the first section of a track record.
const (
	rowAlbum    = "Album"
	rowLabel    = "Label"
	rowReleased = "Released"
)

const appleMusicOpen = "applemusicopen"

// Normalize flattens a backend track record into a Report. It never fails:
// anything missing from t is left empty in the result.
func Normalize(t Track) Report {
	r := Report{
		ID:       clean(t.Key),
		Title:    clean(t.Title),
		Subtitle: clean(t.Subtitle),
		ISRC:     clean(t.ISRC),
		URL:      clean(t.URL),
	}

	if len(t.Artists) > 0 {
		a := t.Artists[0]
		r.Artist = clean(a.Name)
		if r.Artist == "" {
			r.Artist = clean(a.Alias)
		}
	}

	if len(t.Sections) > 0 {
		rows := t.Sections[0].Metadata
		r.Album = rowText(rows, rowAlbum)
		r.Label = rowText(rows, rowLabel)
		r.Released = rowText(rows, rowReleased)
	}

	if t.Genres != nil {
		r.Genre = clean(t.Genres.Primary)
	}
	if t.Images != nil {
		r.CoverArt = clean(t.Images.CoverArt)
	}

	if t.Hub != nil {
		r.Links = Links{
			Spotify:    providerURI(t.Hub.Providers, "SPOTIFY"),
			Deezer:     providerURI(t.Hub.Providers, "DEEZER"),
			AppleMusic: appleMusicURI(t.Hub),
		}
	}

	return r
}

func rowText(rows []SectionRecord, title string) string {
	for _, row := range rows {
		if strings.EqualFold(strings.TrimSpace(row.Title), title) {
			return clean(row.Text)
		}
	}
	return ""
}

func providerURI(providers []Provider, kind string) string {
	for _, p := range providers {
		if !strings.EqualFold(p.Type, kind) {
			continue
		}
		for _, a := range p.Actions {
			if uri := clean(a.URI); uri != "" {
				return uri
			}
		}
		return ""
	}
	return ""
}

func appleMusicURI(h *Hub) string {
	for _, o := range h.Options {
		for _, a := range o.Actions {
			if a.Type == appleMusicOpen && a.URI != "" {
				return clean(a.URI)
			}
		}
	}
	for _, a := range h.Actions {
		if a.Type == appleMusicOpen && a.URI != "" {
			return clean(a.URI)
		}
	}
	return ""
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
