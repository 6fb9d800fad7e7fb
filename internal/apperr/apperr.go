// Package apperr holds the error taxonomy shared by the recognition pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound means the referenced resource does not exist or cannot be resolved.
	ErrNotFound = errors.New("resource not found")
	// ErrUnsupportedContent means the resource is not audio or video.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrNoMatch means no segment produced a recognition match.
	ErrNoMatch = errors.New("no match found")
	// ErrTransient means an external call kept failing after all retries.
	ErrTransient = errors.New("upstream unavailable")
	// ErrProcessFailure means an external tool (transcoder, extractor) failed.
	ErrProcessFailure = errors.New("processing failed")
	// ErrValidation means the request itself is malformed.
	ErrValidation = errors.New("invalid request")
)

// Kind is a stable machine-readable code for an error category.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindUnsupportedContent Kind = "UNSUPPORTED_CONTENT"
	KindNoMatch            Kind = "NO_MATCH"
	KindTransient          Kind = "UPSTREAM_UNAVAILABLE"
	KindProcessFailure     Kind = "PROCESSING_FAILED"
	KindValidation         Kind = "VALIDATION_FAILED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

type category struct {
	sentinel error
	kind     Kind
	status   int
}

// Order matters: the first sentinel found in the chain wins.
var categories = []category{
	{ErrValidation, KindValidation, http.StatusBadRequest},
	{ErrUnsupportedContent, KindUnsupportedContent, http.StatusBadRequest},
	{ErrNotFound, KindNotFound, http.StatusNotFound},
	{ErrNoMatch, KindNoMatch, http.StatusNotFound},
	{ErrProcessFailure, KindProcessFailure, http.StatusInternalServerError},
	{ErrTransient, KindTransient, http.StatusInternalServerError},
}

// Classify maps err onto its category code and HTTP status.
// Unknown errors are internal faults.
func Classify(err error) (Kind, int) {
	for _, c := range categories {
		if errors.Is(err, c.sentinel) {
			return c.kind, c.status
		}
	}
	return KindInternal, http.StatusInternalServerError
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	_, status := Classify(err)
	return status
}

// PublicMessage returns the text a client may see for err. Server-side faults
// only expose their category.
func PublicMessage(err error) string {
	kind, status := Classify(err)
	if status >= http.StatusInternalServerError {
		switch kind {
		case KindProcessFailure:
			return "media processing failed"
		case KindTransient:
			return "an upstream service is unavailable, try again later"
		default:
			return "internal server error"
		}
	}
	switch kind {
	case KindNotFound:
		return "the referenced media could not be found or resolved"
	case KindUnsupportedContent:
		return "the referenced media is not audio or video"
	case KindNoMatch:
		return "no song could be recognized in the media"
	default:
		return err.Error()
	}
}
