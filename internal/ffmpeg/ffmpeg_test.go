package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"songrecognition/internal/apperr"
)

type recordingRunner struct {
	out   []byte
	err   error
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.out, r.err
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{10 * time.Second, "00:00:10.000"},
		{90*time.Second + 500*time.Millisecond, "00:01:30.500"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03.000"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.d); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEncodeClipArgs(t *testing.T) {
	r := &recordingRunner{out: []byte("mp3-bytes")}
	tool := New("/usr/bin/ffmpeg", "", WithCommandRunner(r))

	data, err := tool.EncodeClip(context.Background(), "/tmp/a.mp3", 20*time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("EncodeClip() error: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("EncodeClip() = %q", data)
	}

	args := r.calls[0]
	if args[0] != "/usr/bin/ffmpeg" {
		t.Errorf("binary = %q", args[0])
	}
	for _, want := range [][]string{
		{"-ss", "00:00:20.000"},
		{"-t", "00:00:05.000"},
		{"-acodec", "libmp3lame"},
		{"-b:a", "192k"},
		{"-ar", "44100"},
		{"-ac", "2"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("args %v missing %s %s", args, want[0], want[1])
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
}

func TestEncodeClipEmptyOutput(t *testing.T) {
	tool := New("", "", WithCommandRunner(&recordingRunner{}))
	_, err := tool.EncodeClip(context.Background(), "a.mp3", 0, time.Second)
	if !errors.Is(err, apperr.ErrProcessFailure) {
		t.Errorf("EncodeClip() error = %v, want process failure", err)
	}
}

func TestTranscodeFailure(t *testing.T) {
	tool := New("", "", WithCommandRunner(&recordingRunner{err: errors.New("exit status 1: Invalid data found")}))
	err := tool.Transcode(context.Background(), "in.webm", "out.mp3")
	if !errors.Is(err, apperr.ErrProcessFailure) {
		t.Errorf("Transcode() error = %v, want process failure", err)
	}
}

func TestTranscodeCancelled(t *testing.T) {
	tool := New("", "", WithCommandRunner(&recordingRunner{err: context.Canceled}))
	err := tool.Transcode(context.Background(), "in.webm", "out.mp3")
	if !errors.Is(err, context.Canceled) || errors.Is(err, apperr.ErrProcessFailure) {
		t.Errorf("Transcode() error = %v, want plain cancellation", err)
	}
}

func TestParseProbeDuration(t *testing.T) {
	got, err := parseProbeDuration([]byte(`{"format":{"format_name":"mp3","duration":"25.000000"}}`))
	if err != nil {
		t.Fatalf("parseProbeDuration() error: %v", err)
	}
	if got != 25*time.Second {
		t.Errorf("duration = %v, want 25s", got)
	}

	if _, err := parseProbeDuration([]byte(`{"format":{"format_name":"mp3"}}`)); err == nil {
		t.Error("missing duration should fail")
	}
	if _, err := parseProbeDuration([]byte(`not json`)); err == nil {
		t.Error("invalid JSON should fail")
	}
}

func TestRealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	gen := exec.Command("ffmpeg", "-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=3", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Fatalf("generate tone: %v: %s", err, out)
	}

	tool := New("", "")
	ctx := context.Background()

	dst := filepath.Join(dir, "tone.mp3")
	if err := tool.Transcode(ctx, src, dst); err != nil {
		t.Fatalf("Transcode() error: %v", err)
	}
	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		t.Fatalf("transcoded file missing: %v", err)
	}

	d, err := tool.Duration(ctx, dst)
	if err != nil {
		t.Fatalf("Duration() error: %v", err)
	}
	if d < 2500*time.Millisecond || d > 3500*time.Millisecond {
		t.Errorf("Duration() = %v, want about 3s", d)
	}

	clip, err := tool.EncodeClip(ctx, dst, time.Second, time.Second)
	if err != nil {
		t.Fatalf("EncodeClip() error: %v", err)
	}
	if len(clip) == 0 {
		t.Error("EncodeClip() returned no data")
	}
}
