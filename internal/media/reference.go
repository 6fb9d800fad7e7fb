// Package media turns a client-supplied reference into a normalized local
// audio file.
package media

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"songrecognition/internal/apperr"
)

// Kind identifies how a Reference is resolved.
type Kind int

const (
	// KindPage is a hosted page that needs an extractor (yt-dlp).
	KindPage Kind = iota + 1
	// KindDirect is a URL pointing straight at a media file.
	KindDirect
	// KindUpload is a file sent in the request body.
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "link"
	case KindDirect:
		return "direct_link"
	case KindUpload:
		return "file"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name as used in routes ("link", "direct_link",
// "file") back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "link":
		return KindPage, nil
	case "direct_link":
		return KindDirect, nil
	case "file":
		return KindUpload, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", apperr.ErrValidation, s)
}

// ContentTypePredicate reports whether a media type may be processed.
type ContentTypePredicate func(contentType string) bool

var allowedNonAVTypes = map[string]bool{
	"application/ogg": true,
}

// AudioOrVideo accepts audio/* and video/* types plus a short allow-list.
// Parameters such as "; codecs=opus" are ignored.
func AudioOrVideo(contentType string) bool {
	mt := mediaType(contentType)
	if mt == "" {
		return false
	}
	if strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") {
		return true
	}
	return allowedNonAVTypes[mt]
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

// Reference is an immutable description of what the client wants
// recognized.
type Reference struct {
	kind     Kind
	link     string
	filename string
	body     io.Reader
	allowed  ContentTypePredicate
}

// NewPageReference validates raw as an absolute http(s) URL to a hosted page.
func NewPageReference(raw string) (Reference, error) {
	u, err := ParseLink(raw)
	if err != nil {
		return Reference{}, err
	}
	return Reference{kind: KindPage, link: u.String()}, nil
}

// NewDirectReference validates raw as an absolute http(s) URL to a media file.
func NewDirectReference(raw string) (Reference, error) {
	u, err := ParseLink(raw)
	if err != nil {
		return Reference{}, err
	}
	return Reference{kind: KindDirect, link: u.String(), allowed: AudioOrVideo}, nil
}

// NewUploadReference wraps an uploaded body. The client-declared name is
// kept for logging only.
func NewUploadReference(filename string, body io.Reader) (Reference, error) {
	if body == nil {
		return Reference{}, fmt.Errorf("%w: file is required", apperr.ErrValidation)
	}
	return Reference{kind: KindUpload, filename: filename, body: body, allowed: AudioOrVideo}, nil
}

// NewReference builds a URL reference of the given kind.
func NewReference(kind Kind, raw string) (Reference, error) {
	switch kind {
	case KindPage:
		return NewPageReference(raw)
	case KindDirect:
		return NewDirectReference(raw)
	}
	return Reference{}, fmt.Errorf("%w: %s references carry no link", apperr.ErrValidation, kind)
}

// WithPredicate returns a copy of r that accepts content types matching p.
func (r Reference) WithPredicate(p ContentTypePredicate) Reference {
	r.allowed = p
	return r
}

func (r Reference) Kind() Kind { return r.kind }
func (r Reference) Link() string { return r.link }
func (r Reference) Filename() string { return r.filename }
func (r Reference) Body() io.Reader { return r.body }

// Allows reports whether contentType passes the reference's predicate.
// Page references have no predicate and accept anything.
func (r Reference) Allows(contentType string) bool {
	if r.allowed == nil {
		return true
	}
	return r.allowed(contentType)
}

// String is safe to log.
func (r Reference) String() string {
	if r.kind == KindUpload {
		return fmt.Sprintf("file:%s", r.filename)
	}
	return fmt.Sprintf("%s:%s", r.kind, r.link)
}

// ParseLink accepts only absolute http and https URLs with a host.
func ParseLink(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: link is required", apperr.ErrValidation)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: the string given is not a valid URL", apperr.ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: the string given is not a valid URL", apperr.ErrValidation)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: the string given is not a valid URL", apperr.ErrValidation)
	}
	return u, nil
}
