package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerPercentIsMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.SetTotal(7)

	last := tr.Percent()
	assert.Equal(t, 0.0, last)
	for i := 0; i < 10; i++ {
		tr.Advance()
		p := tr.Percent()
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	assert.Equal(t, 100.0, last)
	assert.Equal(t, int64(7), tr.GetStatus().Scheduled)
}

func TestTrackerEmptyBatch(t *testing.T) {
	tr := NewTracker()
	tr.SetTotal(0)
	assert.Equal(t, 100.0, tr.Percent())
	assert.Equal(t, int64(0), tr.Advance())
}

func TestTrackerCompletionTallies(t *testing.T) {
	tr := NewTracker()
	tr.SetTotal(20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				tr.AddFailed()
				return
			}
			tr.AddReady(100)
		}(i)
	}
	wg.Wait()

	s := tr.GetStatus()
	assert.Equal(t, int64(15), s.Ready)
	assert.Equal(t, int64(5), s.Failed)
	assert.Equal(t, int64(1500), s.ReadyBytes)
}

func TestGenerateProgressBar(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat("-", 10)+"]   0.00%", generateProgressBar(0, 10))
	assert.Equal(t, "[#####-----]  50.00%", generateProgressBar(50, 10))
	assert.Equal(t, "[##########] 100.00%", generateProgressBar(150, 10))
	assert.Equal(t, "[----------]   0.00%", generateProgressBar(-3, 10))
}

func TestDisplayRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(NewTracker(), &buf)

	d.Start(4)
	for i := 0; i < 4; i++ {
		d.Advance()
	}
	d.Done(true, 2048)
	d.Done(false, 0)
	d.Finish()

	out := buf.String()
	frames := strings.Split(strings.SplitN(out, "\n", 2)[0], "\r")
	// leading empty chunk, start frame, four advances, final frame
	require.Len(t, frames, 7)
	assert.Contains(t, frames[1], "0.00% (0/4)")
	assert.Contains(t, frames[3], " 50.00% (2/4)")
	assert.Contains(t, frames[6], "100.00% (4/4)")
	assert.Contains(t, out, "Uploaded 1/4 files (1 failed), 2.0 KB")
}

func TestNopReporter(t *testing.T) {
	var r Reporter = Nop{}
	r.Start(3)
	r.Advance()
	r.Done(true, 1)
	r.Finish()
}

func TestIsTerminalSupported(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminalSupported(f))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 KB/s", FormatSpeed(1024))
	assert.Equal(t, "1m5s", FormatDuration(65*time.Second))
	assert.Equal(t, "1h0m1s", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
}
