package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"songrecognition/internal/apperr"
	"songrecognition/internal/logger"
	"songrecognition/internal/media"
	"songrecognition/internal/metadata"
	"songrecognition/internal/pipeline"
	"songrecognition/internal/recognition"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is one progress message on /ws/recognize.
type Event struct {
	Type   string           `json:"type"`
	Total  int              `json:"total,omitempty"`
	Clip   *ClipEvent       `json:"clip,omitempty"`
	Report *metadata.Report `json:"report,omitempty"`
	Error  *Problem         `json:"error,omitempty"`
}

// ClipEvent describes one recognized clip.
type ClipEvent struct {
	Index   int     `json:"index"`
	StartMS int64   `json:"start_ms"`
	EndMS   int64   `json:"end_ms"`
	IDs     []int64 `json:"ids"`
	Failed  bool    `json:"failed,omitempty"`
}

const (
	EventResolved = "resolved"
	EventPlanned  = "planned"
	EventClip     = "clip"
	EventResult   = "result"
	EventError    = "error"
)

type eventWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *logger.Logger
}

func (e *eventWriter) send(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := e.conn.WriteJSON(ev); err != nil {
		e.log.Debug("Failed to write WebSocket event: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := media.ParseKind(q.Get("kind"))
	if err == nil && kind == media.KindUpload {
		err = fmt.Errorf("%w: uploads are not supported over websocket", apperr.ErrValidation)
	}
	var ref media.Reference
	if err == nil {
		ref, err = media.NewReference(kind, q.Get("link"))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	log := logger.FromContext(r.Context(), s.logger)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The request context is not cancelled when a hijacked client leaves,
	// so watch the read side for the close.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	out := &eventWriter{conn: conn, log: log}
	hooks := pipeline.Hooks{
		OnResolved: func(*media.Asset) {
			out.send(Event{Type: EventResolved})
		},
		OnClips: func(total int) {
			out.send(Event{Type: EventPlanned, Total: total})
		},
		OnClip: func(res recognition.ClipResult) {
			ids := res.IDs
			if ids == nil {
				ids = []int64{}
			}
			out.send(Event{Type: EventClip, Clip: &ClipEvent{
				Index:   res.Index,
				StartMS: res.Start.Milliseconds(),
				EndMS:   res.End.Milliseconds(),
				IDs:     ids,
				Failed:  res.Err != nil,
			}})
		},
	}

	report, err := s.recognizer.Run(ctx, ref, hooks)
	if err != nil {
		if ctx.Err() == nil {
			log.Info("WebSocket recognition failed: %v", err)
		}
		p := problemFor(r, err)
		out.send(Event{Type: EventError, Error: &p})
	} else {
		out.send(Event{Type: EventResult, Report: &report})
	}

	out.mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	out.mu.Unlock()
}
