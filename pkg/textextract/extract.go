package textextract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText is what can be read from a PDF without rendering it.
type PDFText struct {
	Title string
	Pages []string // plain text layer per page, possibly empty
	Total int
}

// HasTextLayer reports whether any sampled page carries embedded text.
// Scanned documents usually do not.
func (t *PDFText) HasTextLayer() bool {
	for _, p := range t.Pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// ExtractPDF reads the document title and the text layer of the first
// maxPages pages. maxPages <= 0 reads every page.
func ExtractPDF(data io.ReaderAt, size int64, maxPages int) (*PDFText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	limit := numPages
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	out := &PDFText{
		Title: strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text()),
		Pages: make([]string, 0, limit),
		Total: numPages,
	}
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			out.Pages = append(out.Pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			out.Pages = append(out.Pages, "")
			continue
		}
		out.Pages = append(out.Pages, text)
	}
	return out, nil
}
