package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"songrecognition/internal/apperr"
)

func TestHeadContentType(t *testing.T) {
	var gets int
	mux := http.NewServeMux()
	mux.HandleFunc("/song.mp3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, "ID3 data")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	ct, err := f.HeadContentType(context.Background(), srv.URL+"/song.mp3")
	if err != nil {
		t.Fatalf("HeadContentType() error: %v", err)
	}
	if ct != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", ct)
	}
	if gets != 0 {
		t.Errorf("HEAD issued %d GETs", gets)
	}

	_, err = f.HeadContentType(context.Background(), srv.URL+"/missing.mp3")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("HeadContentType(missing) error = %v, want not found", err)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, "payload")
		case "/down":
			http.Error(w, "bad gateway", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)

	body, err := f.Stream(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "payload" {
		t.Errorf("body = %q", data)
	}

	_, err = f.Stream(context.Background(), srv.URL+"/down")
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Stream(502) error = %v, want retryable error", err)
	}

	_, err = f.Stream(context.Background(), srv.URL+"/gone")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Stream(404) error = %v, want not found", err)
	}
}
