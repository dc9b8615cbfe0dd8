package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"
	"math"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-extractor/internal/fetching"
)

func init() {
	// Keep pdfcpu from creating a config directory on disk
	model.ConfigPath = "disable"
}

const (
	defaultDPI          = 150
	defaultMaxPages     = 20
	defaultMaxDimension = 4096
	defaultMaxPageBytes = 8 << 20
	defaultConcurrency  = 4
)

// RasterizerOptions configures a Rasterizer
type RasterizerOptions struct {
	DPI          float64
	MaxPages     int
	MaxDimension int // longest side in pixels
	MaxPageBytes int
	Concurrency  int
}

// Rasterizer turns fetched documents into page images
type Rasterizer struct {
	opts    RasterizerOptions
	pdfConf *model.Configuration
}

// NewRasterizer creates a Rasterizer, filling unset options with defaults
func NewRasterizer(opts RasterizerOptions) *Rasterizer {
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = defaultMaxPageBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Rasterizer{opts: opts, pdfConf: conf}
}

// Rasterize renders src into an ordered Document. Images become a single
// page; PDFs are rendered page by page. Failures are returned as
// *RasterizationError.
func (r *Rasterizer) Rasterize(ctx context.Context, src *fetching.Source) (Document, error) {
	switch src.Kind {
	case fetching.KindPDF:
		return r.rasterizePDF(ctx, src.Data)
	case fetching.KindImage:
		page, err := r.rasterizeImage(src.Data, src.MIMEType)
		if err != nil {
			return nil, err
		}
		return Document{page}, nil
	default:
		return nil, &RasterizationError{Kind: RasterCorrupt, Err: fmt.Errorf("unknown document kind %q", src.Kind)}
	}
}

func (r *Rasterizer) rasterizePDF(ctx context.Context, data []byte) (Document, error) {
	// pdfcpu is stricter than MuPDF, so a failure here is only logged and
	// the page count from go-fitz is used instead
	if count, err := api.PageCount(bytes.NewReader(data), r.pdfConf); err != nil {
		slog.WarnContext(ctx, "scanning.pdf.validate_failed", "error", err)
	} else if err := r.checkPageCount(count); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &RasterizationError{Kind: RasterCorrupt, Err: fmt.Errorf("opening PDF: %w", err)}
	}
	defer doc.Close()

	n := doc.NumPage()
	if err := r.checkPageCount(n); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		bound, err := doc.Bound(i)
		if err != nil {
			return nil, &RasterizationError{Kind: RasterCorrupt, Page: i + 1, Err: fmt.Errorf("reading page bounds: %w", err)}
		}
		w, h := r.scaled(bound.Dx()), r.scaled(bound.Dy())
		if max(w, h) > r.opts.MaxDimension {
			return nil, &RasterizationError{Kind: RasterOversize, Page: i + 1,
				Err: fmt.Errorf("page is %dx%d pixels at %v dpi, limit is %d", w, h, r.opts.DPI, r.opts.MaxDimension)}
		}
	}

	// Each goroutine owns one slot, so page order does not depend on which
	// render finishes first. go-fitz serializes access to the document.
	pages := make(Document, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := doc.ImageDPI(i, r.opts.DPI)
			if err != nil {
				return &RasterizationError{Kind: RasterCorrupt, Page: i + 1, Err: fmt.Errorf("rendering PDF page: %w", err)}
			}
			page, err := r.encodePage(i+1, img)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "scanning.pdf.rendered", "pages", n, "dpi", r.opts.DPI)
	return pages, nil
}

func (r *Rasterizer) checkPageCount(n int) error {
	switch {
	case n <= 0:
		return &RasterizationError{Kind: RasterEmpty, Err: fmt.Errorf("document has no pages")}
	case n > r.opts.MaxPages:
		return &RasterizationError{Kind: RasterOversize, Err: fmt.Errorf("document has %d pages, limit is %d", n, r.opts.MaxPages)}
	}
	return nil
}

// scaled converts a length in PDF points to pixels at the configured DPI
func (r *Rasterizer) scaled(points int) int {
	return int(math.Ceil(float64(points) * r.opts.DPI / 72))
}

func (r *Rasterizer) rasterizeImage(data []byte, mimeType string) (PageImage, error) {
	// Go's standard image package doesn't support HEIC, and not every
	// backend accepts it, so it is always converted to PNG
	if isHEICMimeType(mimeType) {
		cfg, err := heic.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: 1, Err: fmt.Errorf("reading HEIC/HEIF header: %w", err)}
		}
		if err := r.checkBounds(cfg.Width, cfg.Height); err != nil {
			return PageImage{}, err
		}
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: 1, Err: fmt.Errorf("decoding HEIC/HEIF image: %w", err)}
		}
		return r.encodePage(1, img)
	}

	// Dimensions are checked from the header so a small file claiming a
	// huge canvas is rejected before any pixels are allocated
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: 1, Err: fmt.Errorf("reading image header: %w", err)}
	}
	if err := r.checkBounds(cfg.Width, cfg.Height); err != nil {
		return PageImage{}, err
	}

	switch format {
	case "jpeg", "png", "webp":
		if len(data) > r.opts.MaxPageBytes {
			return PageImage{}, &RasterizationError{Kind: RasterOversize, Page: 1,
				Err: fmt.Errorf("image is %d bytes, limit is %d", len(data), r.opts.MaxPageBytes)}
		}
		// Decode anyway so truncated or corrupt pixel data is caught here
		// rather than by the model
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: 1, Err: fmt.Errorf("decoding image: %w", err)}
		}
		return PageImage{
			Index:    1,
			Width:    cfg.Width,
			Height:   cfg.Height,
			MIMEType: "image/" + format,
			Data:     data,
		}, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: 1, Err: fmt.Errorf("decoding image: %w", err)}
		}
		return r.encodePage(1, img)
	}
}

func (r *Rasterizer) checkBounds(w, h int) error {
	if w <= 0 || h <= 0 {
		return &RasterizationError{Kind: RasterEmpty, Page: 1, Err: fmt.Errorf("image has no pixels")}
	}
	if max(w, h) > r.opts.MaxDimension {
		return &RasterizationError{Kind: RasterOversize, Page: 1,
			Err: fmt.Errorf("image is %dx%d pixels, limit is %d", w, h, r.opts.MaxDimension)}
	}
	return nil
}

// encodePage encodes a rendered page as PNG
func (r *Rasterizer) encodePage(index int, img image.Image) (PageImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return PageImage{}, &RasterizationError{Kind: RasterCorrupt, Page: index, Err: fmt.Errorf("encoding PNG: %w", err)}
	}
	if buf.Len() > r.opts.MaxPageBytes {
		return PageImage{}, &RasterizationError{Kind: RasterOversize, Page: index,
			Err: fmt.Errorf("encoded page is %d bytes, limit is %d", buf.Len(), r.opts.MaxPageBytes)}
	}
	b := img.Bounds()
	return PageImage{
		Index:    index,
		Width:    b.Dx(),
		Height:   b.Dy(),
		MIMEType: "image/png",
		Data:     buf.Bytes(),
	}, nil
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
