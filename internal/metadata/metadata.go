package metadata

// Track is the full record returned by the recognition backend for a track
// id. Every field is optional; the backend omits whatever it does not know.
type Track struct {
	Key      string    `json:"key,omitempty"`
	Title    string    `json:"title,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Artists  []Artist  `json:"artists,omitempty"`
	Genres   *Genres   `json:"genres,omitempty"`
	Images   *Images   `json:"images,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Hub      *Hub      `json:"hub,omitempty"`
	URL      string    `json:"url,omitempty"`
	ISRC     string    `json:"isrc,omitempty"`
}

type Artist struct {
	Name   string `json:"name,omitempty"`
	Alias  string `json:"alias,omitempty"`
	ID     string `json:"id,omitempty"`
	AdamID string `json:"adamid,omitempty"`
}

type Genres struct {
	Primary string `json:"primary,omitempty"`
}

type Images struct {
	Background string `json:"background,omitempty"`
	CoverArt   string `json:"coverart,omitempty"`
	CoverArtHQ string `json:"coverarthq,omitempty"`
}

// Section is one tab of the track page. The first section carries the
// "Album" / "Label" / "Released" metadata rows.
type Section struct {
	Type     string          `json:"type,omitempty"`
	Metadata []SectionRecord `json:"metadata,omitempty"`
}

type SectionRecord struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

type Hub struct {
	Type      string     `json:"type,omitempty"`
	Actions   []Action   `json:"actions,omitempty"`
	Options   []Option   `json:"options,omitempty"`
	Providers []Provider `json:"providers,omitempty"`
}

type Option struct {
	Caption string   `json:"caption,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Provider is a streaming platform entry, e.g. SPOTIFY or DEEZER.
type Provider struct {
	Caption string   `json:"caption,omitempty"`
	Type    string   `json:"type,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

type Action struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// Report is the flat, client-facing description of a recognized track.
// Absent values are omitted from the JSON form.
type Report struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Label    string `json:"label,omitempty"`
	Released string `json:"released,omitempty"`
	Genre    string `json:"genre,omitempty"`
	CoverArt string `json:"cover_art,omitempty"`
	ISRC     string `json:"isrc,omitempty"`
	Links    Links  `json:"links,omitzero"`
	URL      string `json:"url,omitempty"`
}

// Links holds platform URIs for the track.
type Links struct {
	Spotify    string `json:"spotify,omitempty"`
	Deezer     string `json:"deezer,omitempty"`
	AppleMusic string `json:"apple_music,omitempty"`
}
