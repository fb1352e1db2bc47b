package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a snapshot of a batch run
type Status struct {
	Total        int64
	Scheduled    int64
	Ready        int64
	Failed       int64
	ReadyBytes   int64
	StartTime    time.Time
	AverageSpeed float64 // ready bytes per second since start
}

// Tracker tracks batch progress. The scheduled count is advanced only by
// the scheduling loop; completion tallies may arrive from any goroutine.
type Tracker struct {
	scheduled atomic.Int64
	total     atomic.Int64

	mu     sync.RWMutex
	status Status
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		status: Status{StartTime: time.Now()},
	}
}

// SetTotal sets the number of items in the batch and restarts the clock
func (t *Tracker) SetTotal(total int) {
	t.total.Store(int64(total))
	t.scheduled.Store(0)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Status{StartTime: time.Now()}
}

// Advance records one more scheduled item and returns the new count.
// It never moves past the total.
func (t *Tracker) Advance() int64 {
	for {
		cur := t.scheduled.Load()
		if cur >= t.total.Load() {
			return cur
		}
		if t.scheduled.CompareAndSwap(cur, cur+1) {
			return cur + 1
		}
	}
}

// AddReady counts an item that reached the ready state
func (t *Tracker) AddReady(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Ready++
	t.status.ReadyBytes += bytes
	if elapsed := time.Since(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.ReadyBytes) / elapsed.Seconds()
	}
}

// AddFailed counts an item that failed
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Failed++
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	s := t.status
	t.mu.RUnlock()

	s.Total = t.total.Load()
	s.Scheduled = t.scheduled.Load()
	return s
}

// Percent returns the scheduled share of the batch. An empty batch is
// complete by definition.
func (t *Tracker) Percent() float64 {
	total := t.total.Load()
	if total == 0 {
		return 100
	}
	return float64(t.scheduled.Load()) / float64(total) * 100
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	} else if bytesPerSecond < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	} else if seconds > 0 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
