package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeguard/internal/app"
	"codeguard/internal/config"
	"codeguard/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "codeguard [flags] <credential> <file-extension> <root-directory>",
	Short: "Upload source files and review them for security vulnerabilities",
	Long: `Enumerates files with the given extension under a root directory, uploads them
concurrently to a remote asset store, waits until every upload is ready and sends
the batch to an analyzer. The analysis is printed to standard output.

The credential is the Gemini API key (or the S3 secret key with --store=s3).
Pass "-" to read it from GEMINI_API_KEY or CODEGUARD_S3_SECRET_KEY.`,
	Args:          cobra.MinimumNArgs(3),
	SilenceErrors: true,
	RunE:          runScan,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before reading credentials")

	// Store flags
	rootCmd.Flags().String("store", config.BackendGemini, "Asset store backend (gemini/s3)")
	rootCmd.Flags().String("s3-endpoint", "", "S3 endpoint")
	rootCmd.Flags().String("s3-access-key", "", "S3 access key (or "+config.EnvS3AccessKey+")")
	rootCmd.Flags().Bool("s3-secure", true, "Use HTTPS for S3")
	rootCmd.Flags().String("s3-bucket", "", "S3 bucket")
	rootCmd.Flags().String("s3-prefix", "", "S3 key prefix")

	// Upload flags
	rootCmd.Flags().Bool("ignore-case", false, "Match the file extension case-insensitively")
	rootCmd.Flags().Int("concurrency", 10, "Maximum uploads in flight")
	rootCmd.Flags().Duration("poll-interval", config.Default().Upload.PollInterval, "Delay between readiness polls")
	rootCmd.Flags().Duration("ready-timeout", config.Default().Upload.ReadyTimeout, "Readiness deadline per file (0 disables)")
	rootCmd.Flags().Int("retries", 3, "Maximum attempts per remote call")
	rootCmd.Flags().Duration("retry-backoff", config.Default().Upload.RetryBackoff, "Initial retry backoff")
	rootCmd.Flags().String("failure-policy", "abort", "Failed uploads policy (abort/skip/propagate)")
	rootCmd.Flags().Bool("dry-run", false, "List matching files without uploading")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")
	rootCmd.Flags().String("journal", "", "SQLite outcome journal file")
	rootCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	// Analysis flags
	rootCmd.Flags().String("analyzer", config.AnalyzerGemini, "Analyzer (gemini/manifest)")
	rootCmd.Flags().String("model", config.Default().Analysis.Model, "Gemini model")
	rootCmd.Flags().String("log-level", "warn", "Log level (debug/info/warn/error)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, envFile, cmd.Flags(), args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	err = application.Run(ctx)

	if closeErr := application.Close(); closeErr != nil {
		log.Error("Error closing app", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
