package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/nikhilbhutani/pagescribe/internal/llm"
)

const (
	pointsPerInch  = 72
	previewQuality = 70
	pageQuality    = 90
)

// Renderer rasterizes pages of a loaded document. Pages are 1-based.
type Renderer interface {
	PageCount() int
	Render(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// Document is a PDF loaded into MuPDF.
type Document struct {
	mu  sync.Mutex
	doc *fitz.Document
	n   int
}

// Open loads data for rendering. The bytes must stay unmodified until Close.
func Open(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &Document{doc: doc, n: doc.NumPage()}, nil
}

func (d *Document) PageCount() int { return d.n }

// Render draws page at scale, where scale 1 is 72 dpi.
func (d *Document) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > d.n {
		return nil, fmt.Errorf("page %d out of range 1-%d", page, d.n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.doc.ImageDPI(page-1, pointsPerInch*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}

// Preview is a low resolution thumbnail of one page.
type Preview struct {
	Page   int
	Width  int
	Height int
	Image  llm.Image
}

// Previews renders up to limit leading pages at scale. A page that fails to
// render is left out.
func Previews(ctx context.Context, r Renderer, scale float64, limit int) []Preview {
	n := min(r.PageCount(), limit)
	out := make([]Preview, 0, n)
	for page := 1; page <= n; page++ {
		if ctx.Err() != nil {
			break
		}
		img, err := r.Render(ctx, page, scale)
		if err != nil {
			slog.Warn("preview render failed", "page", page, "error", err)
			continue
		}
		enc, err := encode(img, "jpeg", previewQuality)
		if err != nil {
			slog.Warn("preview encode failed", "page", page, "error", err)
			continue
		}
		b := img.Bounds()
		out = append(out, Preview{Page: page, Width: b.Dx(), Height: b.Dy(), Image: enc})
	}
	return out
}

// EncodePage prepares a rendered page for a provider. format is png or jpeg.
func EncodePage(img image.Image, format string) (llm.Image, error) {
	return encode(img, format, pageQuality)
}

func encode(img image.Image, format string, quality int) (llm.Image, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return llm.Image{}, fmt.Errorf("encode png: %w", err)
		}
		return llm.Image{Data: buf.Bytes(), MIMEType: "image/png"}, nil
	case "jpeg", "jpg", "":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return llm.Image{}, fmt.Errorf("encode jpeg: %w", err)
		}
		return llm.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
	default:
		return llm.Image{}, fmt.Errorf("unsupported image format %q", format)
	}
}
