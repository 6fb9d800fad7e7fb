package media

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestSniff(t *testing.T) {
	id3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 2000)...)
	ogg := append([]byte("OggS\x00\x02"), bytes.Repeat([]byte{0}, 100)...)
	html := []byte("<!DOCTYPE html><html><body>not audio</body></html>")

	tests := []struct {
		name      string
		data      []byte
		wantType  string
		wantAllow bool
	}{
		{name: "id3 tagged mp3", data: id3, wantType: "audio/mpeg", wantAllow: true},
		{name: "ogg", data: ogg, wantAllow: true},
		{name: "html page", data: html, wantType: "text/html", wantAllow: false},
		{name: "empty", data: nil, wantAllow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, r, err := Sniff(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Sniff() error: %v", err)
			}
			if tt.wantType != "" && ct != tt.wantType {
				t.Errorf("content type = %q, want %q", ct, tt.wantType)
			}
			if got := AudioOrVideo(ct); got != tt.wantAllow {
				t.Errorf("AudioOrVideo(%q) = %v, want %v", ct, got, tt.wantAllow)
			}

			rest, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error: %v", err)
			}
			if !bytes.Equal(rest, tt.data) {
				t.Errorf("reader returned %d bytes, want the original %d", len(rest), len(tt.data))
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"audio/mpeg", ".mp3"},
		{"audio/webm; codecs=opus", ".webm"},
		{"video/mp4", ".mp4"},
		{"application/ogg", ".ogg"},
		{"application/x-totally-unknown", ".bin"},
	}
	for _, tt := range tests {
		if got := ExtensionFor(tt.contentType); got != tt.want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestSniffIgnoresDeclaredName(t *testing.T) {
	ref, err := NewUploadReference("song.mp3", strings.NewReader("<html>definitely a page</html>"))
	if err != nil {
		t.Fatalf("NewUploadReference() error: %v", err)
	}
	ct, _, err := Sniff(ref.Body())
	if err != nil {
		t.Fatalf("Sniff() error: %v", err)
	}
	if ref.Allows(ct) {
		t.Errorf("upload named .mp3 but containing HTML was allowed as %q", ct)
	}
}
