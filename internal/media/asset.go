package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AudioFormat describes the encoding every asset and clip is normalized to.
type AudioFormat struct {
	Codec      string
	Bitrate    string
	SampleRate int
	Channels   int
	Container  string
	Ext        string
}

// NormalizedFormat is mp3, 192 kbit/s, 44.1 kHz stereo.
var NormalizedFormat = AudioFormat{
	Codec:      "libmp3lame",
	Bitrate:    "192k",
	SampleRate: 44100,
	Channels:   2,
	Container:  "mp3",
	Ext:        ".mp3",
}

// EncodeArgs returns the ffmpeg output options for f.
func (f AudioFormat) EncodeArgs() []string {
	return []string{
		"-vn",
		"-acodec", f.Codec,
		"-b:a", f.Bitrate,
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-f", f.Container,
	}
}

// Asset is a normalized audio file owned by one request.
type Asset struct {
	ID     uuid.UUID
	Path   string
	Format AudioFormat

	once      sync.Once
	removeErr error
}

// NewAsset allocates a uniquely named asset path under dir. Nothing is
// written to disk.
func NewAsset(dir string) *Asset {
	id := uuid.New()
	return &Asset{
		ID:     id,
		Path:   filepath.Join(dir, id.String()+NormalizedFormat.Ext),
		Format: NormalizedFormat,
	}
}

// Remove deletes the file together with any intermediate files sharing its
// ID (yt-dlp leaves <id>.webm, <id>.m4a.part and the like when conversion
// fails). It is safe to call more than once and on an asset that was never
// written.
func (a *Asset) Remove() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.removeErr = errors.Join(removeFile(a.Path), a.removeSiblings())
	})
	return a.removeErr
}

func (a *Asset) removeSiblings() error {
	if a.Path == "" {
		return nil
	}
	dir := filepath.Dir(a.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	prefix := a.ID.String() + "."
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		errs = append(errs, removeFile(filepath.Join(dir, e.Name())))
	}
	return errors.Join(errs...)
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
