package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func newProblem(r *http.Request, status int, code, detail string) Problem {
	p := Problem{
		Type:   "/problems/" + strings.ToLower(strings.ReplaceAll(code, "_", "-")),
		Title:  http.StatusText(status),
		Status: status,
		Code:   code,
		Detail: detail,
	}
	if r != nil {
		p.Instance = r.URL.EscapedPath()
		p.RequestID = logger.RequestIDFromContext(r.Context())
	}
	return p
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	p := newProblem(r, status, code, detail)
	if p.RequestID == "" {
		p.RequestID = w.Header().Get(HeaderRequestID)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(p)
}

// problemFor maps err onto its public category. The raw error text of
// server-side faults never leaves the process.
func problemFor(r *http.Request, err error) Problem {
	kind, status := apperr.Classify(err)
	return newProblem(r, status, string(kind), apperr.PublicMessage(err))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	p := problemFor(r, err)

	switch {
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		log.Debug("Client went away: %v", err)
	case p.Status >= http.StatusInternalServerError:
		log.Error("Request failed: %v", err)
	default:
		log.Info("Request rejected (%s): %v", p.Code, err)
	}

	writeProblem(w, r, p.Status, p.Code, p.Detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	writeProblem(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
}
