package extraction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/fetching"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// Fetcher downloads a bill document
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetching.Source, error)
}

// Rasterizer renders a document into page images
type Rasterizer interface {
	Rasterize(ctx context.Context, src *fetching.Source) (scanning.Document, error)
}

// Normalizer turns model output into a bill record
type Normalizer interface {
	NormalizeWithLogger(text string, logger *slog.Logger) (*bill.Record, error)
}

// IDGenerator generates request IDs
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Result is a successful extraction
type Result struct {
	RequestID string
	Record    *bill.Record
	Usage     scanning.TokenUsage
}

// Service runs the extraction pipeline. It holds no per-request state.
type Service struct {
	fetcher      Fetcher
	rasterizer   Rasterizer
	scanner      scanning.Scanner
	normalizer   Normalizer
	modelTimeout time.Duration
	idGenerator  IDGenerator
}

// NewService creates a new Service with a UUID request ID generator
func NewService(fetcher Fetcher, rasterizer Rasterizer, scanner scanning.Scanner, normalizer Normalizer, modelTimeout time.Duration) *Service {
	return NewServiceWithDeps(fetcher, rasterizer, scanner, normalizer, modelTimeout, &uuidGenerator{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(fetcher Fetcher, rasterizer Rasterizer, scanner scanning.Scanner, normalizer Normalizer, modelTimeout time.Duration, idGen IDGenerator) *Service {
	return &Service{
		fetcher:      fetcher,
		rasterizer:   rasterizer,
		scanner:      scanner,
		normalizer:   normalizer,
		modelTimeout: modelTimeout,
		idGenerator:  idGen,
	}
}

// Extract fetches the document at url, has the model read it and returns
// the normalized record. Stage failures are returned as the stage's own
// error type: *fetching.Error, *scanning.RasterizationError,
// *scanning.ModelInvocationError, *bill.ParseError or
// *bill.SchemaValidationError.
func (s *Service) Extract(ctx context.Context, url string) (*Result, error) {
	id := s.idGenerator.Generate()
	log := slog.With("request_id", id)
	start := time.Now()

	src, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("Failed to fetch document", "url", url, "error", err)
		return nil, err
	}
	log.Info("Fetched document", "url", url, "kind", src.Kind, "mime_type", src.MIMEType, "bytes", len(src.Data))

	doc, err := s.rasterizer.Rasterize(ctx, src)
	if err != nil {
		log.Warn("Failed to rasterize document", "kind", src.Kind, "error", err)
		return nil, err
	}

	resp, err := s.scan(ctx, scanning.ComposePrompt(doc))
	if err != nil {
		log.Error("Failed to scan document", "pages", len(doc), "error", err)
		return nil, err
	}

	rec, err := s.normalizer.NormalizeWithLogger(resp.Text, log)
	if err != nil {
		log.Error("Failed to normalize model response",
			"error", err,
			"response_bytes", len(resp.Text),
		)
		return nil, err
	}

	log.Info("Extracted bill",
		"pages", len(doc),
		"line_items", rec.ItemCount,
		"warnings", len(rec.Warnings),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		RequestID: id,
		Record:    rec,
		Usage:     resp.Usage,
	}, nil
}

// scan calls the model under the model timeout
func (s *Service) scan(ctx context.Context, payload scanning.Payload) (*scanning.Response, error) {
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}

	resp, err := s.scanner.Scan(ctx, payload)
	if err != nil {
		var merr *scanning.ModelInvocationError
		if errors.As(err, &merr) {
			return nil, err
		}
		return nil, scanning.ClassifyModelError(ctx, err)
	}
	return resp, nil
}
