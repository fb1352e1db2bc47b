package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// BarWidth is the number of cells in the progress bar
const BarWidth = 50

// Reporter receives batch progress events
type Reporter interface {
	// Start announces the batch size.
	Start(total int)
	// Advance is called by the scheduler once per scheduled item.
	Advance()
	// Done records a terminal outcome.
	Done(ok bool, bytes int64)
	// Finish is called once every task is terminal.
	Finish()
}

// Nop discards progress events
type Nop struct{}

func (Nop) Start(int)        {}
func (Nop) Advance()         {}
func (Nop) Done(bool, int64) {}
func (Nop) Finish()          {}

// Display renders progress as a single line redrawn in place
type Display struct {
	tracker *Tracker
	out     io.Writer
	mu      sync.Mutex
}

// NewDisplay creates a new progress display writing to out
func NewDisplay(tracker *Tracker, out io.Writer) *Display {
	return &Display{
		tracker: tracker,
		out:     out,
	}
}

// Start resets the tracker and draws the empty bar
func (d *Display) Start(total int) {
	d.tracker.SetTotal(total)
	d.render()
}

// Advance counts one scheduled item and redraws the line
func (d *Display) Advance() {
	d.tracker.Advance()
	d.render()
}

// Done records a terminal outcome without redrawing
func (d *Display) Done(ok bool, bytes int64) {
	if ok {
		d.tracker.AddReady(bytes)
		return
	}
	d.tracker.AddFailed()
}

// Finish ends the progress line and prints a summary
func (d *Display) Finish() {
	d.render()

	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.tracker.GetStatus()
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "Uploaded %d/%d files (%d failed), %s in %s, %s\n",
		status.Ready,
		status.Total,
		status.Failed,
		FormatBytes(status.ReadyBytes),
		FormatDuration(time.Since(status.StartTime)),
		FormatSpeed(status.AverageSpeed),
	)
}

func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.tracker.GetStatus()
	fmt.Fprintf(d.out, "\r%s (%d/%d)",
		generateProgressBar(d.tracker.Percent(), BarWidth),
		status.Scheduled,
		status.Total,
	)
}

// generateProgressBar generates a visual progress bar
func generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)

	return fmt.Sprintf("[%s] %6.2f%%", bar, percent)
}

// IsTerminalSupported checks if f is attached to a terminal
func IsTerminalSupported(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
