package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the credential argument is "-"
const (
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvS3SecretKey = "CODEGUARD_S3_SECRET_KEY"
	EnvS3AccessKey = "CODEGUARD_S3_ACCESS_KEY"
)

const (
	BackendGemini = "gemini"
	BackendS3     = "s3"

	AnalyzerGemini   = "gemini"
	AnalyzerManifest = "manifest"
)

// Config represents the application configuration
type Config struct {
	Store    Store    `yaml:"store"`
	Upload   Upload   `yaml:"upload"`
	Analysis Analysis `yaml:"analysis"`
	LogLevel string   `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Store selects and configures the remote asset store
type Store struct {
	Backend   string `yaml:"backend" validate:"oneof=gemini s3"`
	APIKey    string `yaml:"api_key" validate:"required_if=Backend gemini"`
	Endpoint  string `yaml:"endpoint" validate:"required_if=Backend s3"`
	AccessKey string `yaml:"access_key" validate:"required_if=Backend s3"`
	SecretKey string `yaml:"secret_key" validate:"required_if=Backend s3"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket" validate:"required_if=Backend s3"`
	Prefix    string `yaml:"prefix"`
}

// Upload represents the batch upload configuration
type Upload struct {
	Root          string        `yaml:"-" validate:"required"`
	Extension     string        `yaml:"-" validate:"required"`
	IgnoreCase    bool          `yaml:"ignore_case"`
	Concurrency   int           `yaml:"concurrency" validate:"min=1"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	Retries       int           `yaml:"retries" validate:"min=1"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	FailurePolicy string        `yaml:"failure_policy" validate:"oneof=abort skip propagate"`
	DryRun        bool          `yaml:"dry_run"`
	ShowProgress  bool          `yaml:"show_progress"`
	Journal       string        `yaml:"journal"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

// Analysis configures the consumer of the ready batch
type Analysis struct {
	Analyzer string `yaml:"analyzer" validate:"oneof=gemini manifest"`
	Model    string `yaml:"model"`
}

// Default returns the configuration used before any file or flag is applied
func Default() *Config {
	return &Config{
		LogLevel: "warn",
		Store: Store{
			Backend: BackendGemini,
			Secure:  true,
		},
		Upload: Upload{
			Concurrency:   10,
			PollInterval:  time.Second,
			ReadyTimeout:  10 * time.Minute,
			Retries:       3,
			RetryBackoff:  500 * time.Millisecond,
			MaxBackoff:    10 * time.Second,
			FailurePolicy: "abort",
			ShowProgress:  true,
		},
		Analysis: Analysis{
			Analyzer: AnalyzerGemini,
			Model:    "gemini-2.0-flash",
		},
	}
}

// Load builds the configuration from defaults, the YAML file, changed flags
// and the positional arguments <credential> <extension> <root>.
func Load(configFile, envFile string, flags *pflag.FlagSet, args []string) (*Config, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("expected 3 arguments <credential> <file-extension> <root-directory>, got %d", len(args))
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	cfg.applyArgs(args)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("store") {
		cfg.Store.Backend, _ = flags.GetString("store")
	}
	if flags.Changed("s3-endpoint") {
		cfg.Store.Endpoint, _ = flags.GetString("s3-endpoint")
	}
	if flags.Changed("s3-access-key") {
		cfg.Store.AccessKey, _ = flags.GetString("s3-access-key")
	}
	if flags.Changed("s3-secure") {
		cfg.Store.Secure, _ = flags.GetBool("s3-secure")
	}
	if flags.Changed("s3-bucket") {
		cfg.Store.Bucket, _ = flags.GetString("s3-bucket")
	}
	if flags.Changed("s3-prefix") {
		cfg.Store.Prefix, _ = flags.GetString("s3-prefix")
	}

	if flags.Changed("ignore-case") {
		cfg.Upload.IgnoreCase, _ = flags.GetBool("ignore-case")
	}
	if flags.Changed("concurrency") {
		cfg.Upload.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("poll-interval") {
		cfg.Upload.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("ready-timeout") {
		cfg.Upload.ReadyTimeout, _ = flags.GetDuration("ready-timeout")
	}
	if flags.Changed("retries") {
		cfg.Upload.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff") {
		cfg.Upload.RetryBackoff, _ = flags.GetDuration("retry-backoff")
	}
	if flags.Changed("failure-policy") {
		cfg.Upload.FailurePolicy, _ = flags.GetString("failure-policy")
	}
	if flags.Changed("dry-run") {
		cfg.Upload.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("show-progress") {
		cfg.Upload.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("journal") {
		cfg.Upload.Journal, _ = flags.GetString("journal")
	}
	if flags.Changed("metrics-addr") {
		cfg.Upload.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if flags.Changed("analyzer") {
		cfg.Analysis.Analyzer, _ = flags.GetString("analyzer")
	}
	if flags.Changed("model") {
		cfg.Analysis.Model, _ = flags.GetString("model")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
}

// applyArgs maps the positional arguments. The credential is the Gemini API
// key for the gemini backend and the secret key for s3; "-" reads it from
// the environment.
func (c *Config) applyArgs(args []string) {
	credential, ext, root := args[0], args[1], args[2]

	if c.Store.AccessKey == "" {
		c.Store.AccessKey = os.Getenv(EnvS3AccessKey)
	}

	switch c.Store.Backend {
	case BackendS3:
		if credential == "-" {
			credential = os.Getenv(EnvS3SecretKey)
		}
		c.Store.SecretKey = credential
		// the gemini analyzer cannot run on an s3 store, so manifest is the
		// natural default there
		if c.Analysis.Analyzer == AnalyzerGemini && c.Store.APIKey == "" {
			c.Analysis.Analyzer = AnalyzerManifest
		}
	default:
		if credential == "-" {
			credential = os.Getenv(EnvAPIKey)
		}
		c.Store.APIKey = credential
	}

	c.Upload.Extension = NormalizeExtension(ext)
	c.Upload.Root = root
}

// NormalizeExtension accepts "cs", ".cs" and "*.cs" and returns ".cs"
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	ext = strings.TrimPrefix(ext, "*")
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.Analysis.Analyzer == AnalyzerGemini && c.Store.Backend != BackendGemini {
		return fmt.Errorf("the gemini analyzer requires the gemini store (file URIs from other stores are not readable by the model)")
	}
	if c.Upload.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Upload.ReadyTimeout < 0 {
		return fmt.Errorf("ready timeout cannot be negative")
	}
	if c.Upload.RetryBackoff < 0 || c.Upload.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}

	return nil
}
