package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"songrecognition/internal/apperr"
	"songrecognition/internal/media"
	"songrecognition/internal/pipeline"
)

const docs = `songrec - identify the song played in a video or audio file

GET  /recognize/link?link=<url>          page on a site supported by yt-dlp
GET  /recognize/direct_link?link=<url>   URL of an audio or video file
POST /recognize/file                     multipart/form-data, field "file"
GET  /ws/recognize?link=<url>&kind=link|direct_link
                                         progress events over a websocket
GET  /healthz
GET  /metrics

Successful requests return the track as JSON. Errors are
application/problem+json with a stable "code".
`

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, docs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.Warn("Health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLink(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := media.NewReference(kind, r.URL.Query().Get("link"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.recognize(w, r, ref)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrValidation, tooLarge.Limit))
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: a multipart form with a \"file\" field is required", apperr.ErrValidation))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	ref, err := media.NewUploadReference(header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.recognize(w, r, ref)
}

func (s *Server) recognize(w http.ResponseWriter, r *http.Request, ref media.Reference) {
	report, err := s.recognizer.Run(r.Context(), ref, pipeline.Hooks{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
