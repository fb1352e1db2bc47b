package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"codeguard/internal/aggregate"
	"codeguard/internal/analysis"
	"codeguard/internal/config"
	"codeguard/internal/journal"
	"codeguard/internal/metrics"
	"codeguard/internal/progress"
	"codeguard/internal/storage"
	"codeguard/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ErrNothingReady is returned when no upload reached the ready state
var ErrNothingReady = errors.New("no uploads became ready")

// App represents the upload-and-analyze application
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	runID    string
	lister   *FileLister
	store    storage.Store
	analyzer analysis.Analyzer
	journal  journal.Store
	metrics  *metrics.Collector
	progress progress.Reporter
	out      io.Writer
}

// New creates the application with clients for the configured backends
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	var genaiClient *genai.Client
	if cfg.Store.Backend == config.BackendGemini || cfg.Analysis.Analyzer == config.AnalyzerGemini {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Store.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		genaiClient = client
	}

	var store storage.Store
	switch cfg.Store.Backend {
	case config.BackendS3:
		minioStore, err := storage.NewMinIOStore(storage.Config{
			Endpoint:  cfg.Store.Endpoint,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
			Secure:    cfg.Store.Secure,
			Bucket:    cfg.Store.Bucket,
			Prefix:    cfg.Store.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		store = minioStore
	default:
		store = storage.NewGeminiStore(genaiClient)
	}

	var analyzer analysis.Analyzer
	switch cfg.Analysis.Analyzer {
	case config.AnalyzerManifest:
		analyzer = analysis.ManifestAnalyzer{}
	default:
		analyzer = analysis.NewGeminiAnalyzer(genaiClient, cfg.Analysis.Model)
	}

	var journalStore journal.Store
	if cfg.Upload.Journal != "" {
		sqliteStore, err := journal.NewSQLiteStore(cfg.Upload.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal: %w", err)
		}
		journalStore = sqliteStore
	}

	a := newApp(cfg, logger, store, analyzer, journalStore, os.Stdout)

	if cfg.Upload.ShowProgress && !cfg.Upload.DryRun && progress.IsTerminalSupported(os.Stderr) {
		a.progress = progress.NewDisplay(progress.NewTracker(), os.Stderr)
		logger.Debug("Progress display enabled")
	} else {
		logger.Debug("Progress display disabled",
			zap.Bool("show_progress", cfg.Upload.ShowProgress),
			zap.Bool("dry_run", cfg.Upload.DryRun),
		)
	}

	return a, nil
}

func newApp(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Store,
	analyzer analysis.Analyzer,
	journalStore journal.Store,
	out io.Writer,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		runID:    uuid.NewString(),
		lister:   NewFileLister(logger),
		store:    store,
		analyzer: analyzer,
		journal:  journalStore,
		metrics:  metrics.New(),
		progress: progress.Nop{},
		out:      out,
	}
}

// RunID identifies this run in logs and the journal
func (a *App) RunID() string {
	return a.runID
}

// Run lists the input files, uploads them, waits until every upload is
// terminal and hands the ready batch to the analyzer. The analysis text is
// written to the output after a blank line.
func (a *App) Run(ctx context.Context) error {
	up := a.cfg.Upload
	a.logger.Info("Starting run",
		zap.String("run_id", a.runID),
		zap.String("root", up.Root),
		zap.String("extension", up.Extension),
		zap.String("store", a.cfg.Store.Backend),
		zap.String("analyzer", a.cfg.Analysis.Analyzer),
		zap.Int("concurrency", up.Concurrency),
		zap.Bool("dry_run", up.DryRun),
	)

	if up.MetricsAddr != "" {
		go func() {
			if err := a.metrics.StartServer(ctx, up.MetricsAddr); err != nil {
				a.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	tasks, err := a.lister.List(up.Root, up.Extension, up.IgnoreCase)
	if err != nil {
		return err
	}

	if up.DryRun {
		for _, task := range tasks {
			a.logger.Info("Would upload file",
				zap.String("path", task.Rel),
				zap.Int64("size", task.Size),
			)
			fmt.Fprintln(a.out, task.Rel)
		}
		return nil
	}

	if len(tasks) == 0 {
		a.logger.Warn("No files matched, nothing to analyze",
			zap.String("root", up.Root),
			zap.String("extension", up.Extension),
		)
		return nil
	}

	results := a.upload(ctx, tasks)
	a.summarize(ctx, results)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}

	policy, err := aggregate.ParsePolicy(up.FailurePolicy)
	if err != nil {
		return err
	}

	batch, batchErr := aggregate.New(policy, a.logger).Collect(results)
	if batch.Empty() {
		if batchErr != nil {
			return batchErr
		}
		return ErrNothingReady
	}

	a.logger.Info("Analyzing batch",
		zap.Int("attachments", batch.Len()),
		zap.String("model", a.cfg.Analysis.Model),
	)
	text, err := a.analyzer.Analyze(ctx, batch)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	fmt.Fprintf(a.out, "\n%s\n", text)

	return batchErr
}

func (a *App) upload(ctx context.Context, tasks []worker.Task) []worker.Result {
	up := a.cfg.Upload
	processor := worker.NewTaskProcessor(worker.Config{
		PollInterval: up.PollInterval,
		ReadyTimeout: up.ReadyTimeout,
		Retries:      up.Retries,
		RetryBackoff: up.RetryBackoff,
		MaxBackoff:   up.MaxBackoff,
		RunID:        a.runID,
	}, a.store, a.journal, a.metrics, a.logger)

	pool := worker.NewPool(worker.NewLimiter(up.Concurrency), processor, a.progress, a.metrics, a.logger)
	return pool.Run(ctx, tasks)
}

func (a *App) summarize(ctx context.Context, results []worker.Result) {
	ready := 0
	for _, res := range results {
		if res.OK() {
			ready++
		}
	}
	a.logger.Info("Uploads finished",
		zap.String("run_id", a.runID),
		zap.Int("total", len(results)),
		zap.Int("ready", ready),
		zap.Int("failed", len(results)-ready),
	)

	if a.journal == nil {
		return
	}
	records, err := a.journal.List(context.WithoutCancel(ctx), a.runID)
	if err != nil {
		a.logger.Error("Failed to read journal", zap.Error(err))
		return
	}
	if len(records) != len(results) {
		a.logger.Warn("Journal does not match results",
			zap.Int("records", len(records)),
			zap.Int("results", len(results)),
		)
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
