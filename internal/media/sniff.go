package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of an upload is inspected for magic bytes.
const sniffLen = 1024

// Sniff detects the media type of r from its first bytes. The returned
// reader yields the full original content.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	ct := mediaType(mimetype.Detect(head).String())
	return ct, io.MultiReader(bytes.NewReader(head), r), nil
}

var extensionsByType = map[string]string{
	"audio/mpeg":       ".mp3",
	"audio/mp3":        ".mp3",
	"audio/mp4":        ".m4a",
	"audio/x-m4a":      ".m4a",
	"audio/aac":        ".aac",
	"audio/ogg":        ".ogg",
	"audio/opus":       ".opus",
	"audio/flac":       ".flac",
	"audio/x-flac":     ".flac",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/vnd.wave":   ".wav",
	"audio/webm":       ".webm",
	"application/ogg":  ".ogg",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/x-msvideo":  ".avi",
}

// ExtensionFor infers a file extension for a content type, falling back
// to ".bin".
func ExtensionFor(contentType string) string {
	mt := mediaType(contentType)
	if ext, ok := extensionsByType[mt]; ok {
		return ext
	}
	if m := mimetype.Lookup(mt); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}
