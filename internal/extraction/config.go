package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/fetching"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// EnvVarPrefix prefixes every flag's environment variable
const EnvVarPrefix = "BILL_EXTRACTOR"

// Config holds everything needed to build a Service
type Config struct {
	ScannerType      string
	GeminiKey        string
	GeminiModel      string
	VertexProject    string
	VertexRegion     string
	VertexModel      string
	OllamaURL        string
	OllamaModel      string
	MaxPages         int
	MaxDimension     int
	MaxPageBytes     int
	MaxDocumentBytes int
	RenderDPI        float64
	RenderWorkers    int
	FetchTimeout     time.Duration
	ModelTimeout     time.Duration
	RetryBackoff     time.Duration
	AbsTolerance     float64
	RelTolerance     float64
	UserAgent        string
	AllowPrivate     bool
	EnableGCS        bool
}

// Flags are the registered pipeline flags
type Flags struct {
	scannerType      *string
	geminiKey        *string
	geminiModel      *string
	vertexProject    *string
	vertexRegion     *string
	vertexModel      *string
	ollamaURL        *string
	ollamaModel      *string
	maxPages         *int
	maxDimension     *int
	maxPageBytes     *int
	maxDocumentBytes *int
	renderDPI        *float64
	renderWorkers    *int
	fetchTimeout     *time.Duration
	modelTimeout     *time.Duration
	retryBackoff     *time.Duration
	absTolerance     *float64
	relTolerance     *float64
	userAgent        *string
	allowPrivate     *bool
	enableGCS        *bool
}

// RegisterFlags registers the pipeline flags on fs
func RegisterFlags(fs *ff.FlagSet) *Flags {
	return &Flags{
		scannerType:      fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'vertex' or 'ollama'"),
		geminiKey:        fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:      fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		vertexProject:    fs.StringLong("vertex-project", "", "Google Cloud project for Vertex AI"),
		vertexRegion:     fs.StringLong("vertex-region", "us-central1", "Vertex AI region"),
		vertexModel:      fs.StringLong("vertex-model", "gemini-2.5-flash", "Vertex AI model name"),
		ollamaURL:        fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:      fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl, llama3.2-vision)"),
		maxPages:         fs.IntLong("max-pages", 20, "Maximum number of pages per document"),
		maxDimension:     fs.IntLong("max-dimension", 4096, "Maximum rendered page side in pixels"),
		maxPageBytes:     fs.IntLong("max-page-bytes", 8<<20, "Maximum encoded size of one page image"),
		maxDocumentBytes: fs.IntLong("max-document-bytes", 25<<20, "Maximum size of a downloaded document"),
		renderDPI:        fs.Float64Long("render-dpi", 150, "PDF render resolution"),
		renderWorkers:    fs.IntLong("render-workers", 4, "Pages rendered concurrently"),
		fetchTimeout:     fs.DurationLong("fetch-timeout", 30*time.Second, "Document download timeout"),
		modelTimeout:     fs.DurationLong("model-timeout", 120*time.Second, "Model call timeout, including one retry"),
		retryBackoff:     fs.DurationLong("retry-backoff", time.Second, "Wait before retrying a failed model call"),
		absTolerance:     fs.Float64Long("abs-tolerance", bill.DefaultTolerance.Absolute, "Absolute tolerance when comparing amounts"),
		relTolerance:     fs.Float64Long("rel-tolerance", bill.DefaultTolerance.Relative, "Relative tolerance when comparing amounts"),
		userAgent:        fs.StringLong("user-agent", "Mozilla/5.0", "User-Agent sent when downloading documents"),
		allowPrivate:     fs.BoolLong("allow-private-hosts", "Allow document URLs on loopback, private and link-local addresses"),
		enableGCS:        fs.BoolLong("enable-gcs", "Allow gs:// document URLs using application default credentials"),
	}
}

// Config returns the parsed flag values
func (f *Flags) Config() Config {
	return Config{
		ScannerType:      *f.scannerType,
		GeminiKey:        *f.geminiKey,
		GeminiModel:      *f.geminiModel,
		VertexProject:    *f.vertexProject,
		VertexRegion:     *f.vertexRegion,
		VertexModel:      *f.vertexModel,
		OllamaURL:        *f.ollamaURL,
		OllamaModel:      *f.ollamaModel,
		MaxPages:         *f.maxPages,
		MaxDimension:     *f.maxDimension,
		MaxPageBytes:     *f.maxPageBytes,
		MaxDocumentBytes: *f.maxDocumentBytes,
		RenderDPI:        *f.renderDPI,
		RenderWorkers:    *f.renderWorkers,
		FetchTimeout:     *f.fetchTimeout,
		ModelTimeout:     *f.modelTimeout,
		RetryBackoff:     *f.retryBackoff,
		AbsTolerance:     *f.absTolerance,
		RelTolerance:     *f.relTolerance,
		UserAgent:        *f.userAgent,
		AllowPrivate:     *f.allowPrivate,
		EnableGCS:        *f.enableGCS,
	}
}

// NewScanner creates the configured model backend, wrapped with a single
// retry
func NewScanner(ctx context.Context, cfg Config) (scanning.Scanner, error) {
	var (
		scanner scanning.Scanner
		err     error
	)
	switch cfg.ScannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		scanner, err = scanning.NewGemini(ctx, apiKey, cfg.GeminiModel)
	case "vertex":
		slog.Info("Initializing Vertex AI scanner...", "project", cfg.VertexProject, "region", cfg.VertexRegion, "model", cfg.VertexModel)
		scanner, err = scanning.NewVertex(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.VertexModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		scanner, err = scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid types are gemini, vertex or ollama", cfg.ScannerType)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s scanner: %w", cfg.ScannerType, err)
	}
	return scanning.WithRetry(scanner, cfg.RetryBackoff), nil
}

// Build wires a Service from cfg. The returned cleanup closes the clients
// it created.
func Build(ctx context.Context, cfg Config) (*Service, func(), error) {
	normalizer, err := bill.NewNormalizer(bill.Options{
		Tolerance: &bill.Tolerance{Absolute: cfg.AbsTolerance, Relative: cfg.RelTolerance},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing normalizer: %w", err)
	}

	scanner, err := NewScanner(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{scanner.Close}

	fetchOpts := fetching.Options{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.UserAgent,
		MaxBytes:  int64(cfg.MaxDocumentBytes),

		AllowPrivateHosts: cfg.AllowPrivate,
	}
	if cfg.EnableGCS {
		slog.Info("Initializing Cloud Storage reader...")
		gcs, err := fetching.NewGCSReader(ctx)
		if err != nil {
			scanner.Close()
			return nil, nil, fmt.Errorf("initializing cloud storage: %w", err)
		}
		fetchOpts.Objects = gcs
		closers = append(closers, gcs.Close)
	}

	rasterizer := scanning.NewRasterizer(scanning.RasterizerOptions{
		DPI:          cfg.RenderDPI,
		MaxPages:     cfg.MaxPages,
		MaxDimension: cfg.MaxDimension,
		MaxPageBytes: cfg.MaxPageBytes,
		Concurrency:  cfg.RenderWorkers,
	})

	service := NewService(fetching.NewHTTPFetcher(fetchOpts), rasterizer, scanner, normalizer, cfg.ModelTimeout)
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("Error closing client", "error", err)
			}
		}
	}
	return service, cleanup, nil
}
