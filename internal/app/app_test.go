package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codeguard/internal/aggregate"
	"codeguard/internal/config"
	"codeguard/internal/journal"
	"codeguard/internal/storage"
	"codeguard/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore reports every upload ACTIVE after one poll, except the keys in
// failed which end in the FAILED state.
type stubStore struct {
	mu      sync.Mutex
	failed  map[string]bool
	uploads []string
}

func (s *stubStore) Upload(_ context.Context, src storage.Source) (storage.Provisional, error) {
	s.mu.Lock()
	s.uploads = append(s.uploads, src.Key)
	s.mu.Unlock()
	return storage.Provisional{
		Name:     src.Key,
		URI:      "mem://" + src.Key,
		MIMEType: "text/plain",
		State:    storage.StateProcessing,
	}, nil
}

func (s *stubStore) Status(_ context.Context, name string) (storage.Provisional, error) {
	state := storage.StateActive
	if s.failed[name] {
		state = storage.StateFailed
	}
	return storage.Provisional{Name: name, URI: "mem://" + name, MIMEType: "text/plain", State: state}, nil
}

type recordingAnalyzer struct {
	batches []aggregate.Batch
	err     error
}

func (r *recordingAnalyzer) Analyze(_ context.Context, batch aggregate.Batch) (string, error) {
	r.batches = append(r.batches, batch)
	if r.err != nil {
		return "", r.err
	}
	var uris []string
	for _, h := range batch.Handles() {
		uris = append(uris, h.URI)
	}
	return "report: " + strings.Join(uris, ","), nil
}

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("class "+f+" {}"), 0o600))
	}
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Store.APIKey = "test"
	cfg.Upload.Root = root
	cfg.Upload.Extension = ".cs"
	cfg.Upload.PollInterval = time.Millisecond
	cfg.Upload.RetryBackoff = time.Millisecond
	cfg.Upload.Concurrency = 2
	return cfg
}

func TestRunAnalyzesReadyBatchInOrder(t *testing.T) {
	root := writeTree(t, "b.cs", "a.cs", "sub/c.cs", "readme.md")
	store := &stubStore{}
	analyzer := &recordingAnalyzer{}
	var out bytes.Buffer

	a := newApp(testConfig(root), zap.NewNop(), store, analyzer, nil, &out)
	require.NoError(t, a.Run(context.Background()))

	require.Len(t, analyzer.batches, 1)
	batch := analyzer.batches[0]
	require.Equal(t, 3, batch.Len())
	assert.Equal(t, "a.cs", batch.Entries[0].Rel)
	assert.Equal(t, "b.cs", batch.Entries[1].Rel)
	assert.Equal(t, "sub/c.cs", batch.Entries[2].Rel)

	assert.Equal(t, "\nreport: mem://a.cs,mem://b.cs,mem://sub/c.cs\n", out.String())
	assert.Len(t, store.uploads, 3)
}

func TestRunDryRunListsWithoutUploading(t *testing.T) {
	root := writeTree(t, "a.cs", "b.cs")
	store := &stubStore{}
	analyzer := &recordingAnalyzer{}
	var out bytes.Buffer

	cfg := testConfig(root)
	cfg.Upload.DryRun = true

	a := newApp(cfg, zap.NewNop(), store, analyzer, nil, &out)
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, "a.cs\nb.cs\n", out.String())
	assert.Empty(t, store.uploads)
	assert.Empty(t, analyzer.batches)
}

func TestRunNoMatchesSkipsAnalysis(t *testing.T) {
	root := writeTree(t, "main.go")
	analyzer := &recordingAnalyzer{}
	var out bytes.Buffer

	a := newApp(testConfig(root), zap.NewNop(), &stubStore{}, analyzer, nil, &out)
	require.NoError(t, a.Run(context.Background()))

	assert.Empty(t, analyzer.batches)
	assert.Empty(t, out.String())
}

func TestRunMissingRoot(t *testing.T) {
	a := newApp(testConfig(filepath.Join(t.TempDir(), "missing")), zap.NewNop(), &stubStore{}, &recordingAnalyzer{}, nil, &bytes.Buffer{})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnumeration)
}

func TestRunFailurePolicies(t *testing.T) {
	tests := []struct {
		policy       string
		wantErr      bool
		wantAnalyzed int
	}{
		{policy: "abort", wantErr: true, wantAnalyzed: -1},
		{policy: "skip", wantErr: false, wantAnalyzed: 3},
		{policy: "propagate", wantErr: true, wantAnalyzed: 3},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			root := writeTree(t, "a.cs", "b.cs", "c.cs", "d.cs")
			store := &stubStore{failed: map[string]bool{"c.cs": true}}
			analyzer := &recordingAnalyzer{}

			cfg := testConfig(root)
			cfg.Upload.FailurePolicy = tt.policy

			a := newApp(cfg, zap.NewNop(), store, analyzer, nil, &bytes.Buffer{})
			err := a.Run(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, aggregate.ErrBatchFailed)
				assert.ErrorIs(t, err, worker.ErrRemoteFailed)
				assert.Contains(t, err.Error(), "c.cs")
			} else {
				require.NoError(t, err)
			}

			if tt.wantAnalyzed < 0 {
				assert.Empty(t, analyzer.batches)
				return
			}
			require.Len(t, analyzer.batches, 1)
			batch := analyzer.batches[0]
			require.Equal(t, tt.wantAnalyzed, batch.Len())
			assert.Equal(t, []string{"a.cs", "b.cs", "d.cs"}, []string{
				batch.Entries[0].Rel, batch.Entries[1].Rel, batch.Entries[2].Rel,
			})
		})
	}
}

func TestRunAllFailedUnderSkip(t *testing.T) {
	root := writeTree(t, "a.cs")
	analyzer := &recordingAnalyzer{}

	cfg := testConfig(root)
	cfg.Upload.FailurePolicy = "skip"

	a := newApp(cfg, zap.NewNop(), &stubStore{failed: map[string]bool{"a.cs": true}}, analyzer, nil, &bytes.Buffer{})
	err := a.Run(context.Background())

	assert.ErrorIs(t, err, ErrNothingReady)
	assert.Empty(t, analyzer.batches)
}

func TestRunAnalysisError(t *testing.T) {
	root := writeTree(t, "a.cs")
	analyzer := &recordingAnalyzer{err: errors.New("quota exceeded")}
	var out bytes.Buffer

	a := newApp(testConfig(root), zap.NewNop(), &stubStore{}, analyzer, nil, &out)
	err := a.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, out.String())
}

func TestRunCancelled(t *testing.T) {
	root := writeTree(t, "a.cs", "b.cs")
	analyzer := &recordingAnalyzer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newApp(testConfig(root), zap.NewNop(), &stubStore{}, analyzer, nil, &bytes.Buffer{})
	err := a.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, analyzer.batches)
}

func TestRunRecordsJournal(t *testing.T) {
	root := writeTree(t, "a.cs", "b.cs")
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	a := newApp(testConfig(root), zap.NewNop(), &stubStore{}, &recordingAnalyzer{}, store, &bytes.Buffer{})
	require.NoError(t, a.Run(context.Background()))

	records, err := store.List(context.Background(), a.RunID())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, journal.StatusReady, rec.Status)
		assert.True(t, strings.HasPrefix(rec.URI, "mem://"))
	}

	require.NoError(t, a.Close())
}
