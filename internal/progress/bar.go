// Package progress renders a one-line terminal progress bar for clip
// recognition.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Bar represents a simple progress bar
type Bar struct {
	w       io.Writer
	total   int
	current int
	matched int
	mu      sync.Mutex
	start   time.Time
	done    bool
}

// New creates a progress bar over total clips writing to w.
func New(w io.Writer, total int) *Bar {
	b := &Bar{w: w, total: total, start: time.Now()}
	b.mu.Lock()
	b.render()
	b.mu.Unlock()
	return b
}

// Increment records one finished clip. Safe for concurrent use.
func (b *Bar) Increment(matched bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	if matched {
		b.matched++
	}
	b.render()
}

// Finish completes the line. Later calls are no-ops.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.render()
		fmt.Fprintln(b.w)
		b.done = true
	}
}

func (b *Bar) render() {
	if b.done {
		return
	}

	filled := barWidth
	if b.total > 0 {
		filled = min(barWidth, barWidth*b.current/b.total)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.w, "\r[%s] clip %d/%d, %d matched - %s   ",
		bar,
		b.current,
		b.total,
		b.matched,
		formatDuration(time.Since(b.start)),
	)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
