package utils

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var installHints = map[string]string{
	"yt-dlp":  "pip install yt-dlp",
	"ffmpeg":  "install ffmpeg from your package manager",
	"ffprobe": "ships with ffmpeg",
}

// CheckDependencies verifies that required external commands are installed
func CheckDependencies(commands ...string) error {
	var errs []error
	for _, name := range commands {
		if _, err := exec.LookPath(name); err != nil {
			msg := fmt.Sprintf("required command '%s' not found in PATH", name)
			if hint, ok := installHints[filepath.Base(name)]; ok {
				msg += ". Install with: " + hint
			}
			errs = append(errs, errors.New(msg))
		}
	}
	return errors.Join(errs...)
}

// EnsureDirs creates every directory, with parents, if missing.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			return fmt.Errorf("directory path cannot be empty")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateTempDir creates a temporary folder for one-shot runs
func CreateTempDir() (string, error) {
	dir, err := os.MkdirTemp("", "songrec-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes the temporary folder.
// Safety check: only deletes directories in /tmp
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}

	if !strings.HasPrefix(filepath.Clean(dir), filepath.Clean(os.TempDir())) {
		return fmt.Errorf("refusing to delete directory outside temp folder: %s", dir)
	}

	return os.RemoveAll(dir)
}

// SweepStale removes regular files directly under dir that were last
// modified more than maxAge ago. It returns the number of files removed.
// A missing dir is not an error.
func SweepStale(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
