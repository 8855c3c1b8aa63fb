package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/nikhilbhutani/pagescribe/pkg/textextract"
)

// ErrUnreadable marks a file that cannot be accepted as a PDF.
var ErrUnreadable = errors.New("unreadable PDF")

// textLayerSample is how many pages are checked for embedded text.
const textLayerSample = 3

func init() {
	// keep pdfcpu from creating a config directory under $HOME
	model.ConfigPath = "disable"
}

// Info describes an accepted document.
type Info struct {
	PageCount    int    `json:"page_count"`
	Title        string `json:"title,omitempty"`
	HasTextLayer bool   `json:"has_text_layer"`
}

// Inspect validates data as a PDF and reads its page count and title.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty file", ErrUnreadable)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return Info{}, fmt.Errorf("%w: count pages: %v", ErrUnreadable, err)
	}
	if count == 0 {
		return Info{}, fmt.Errorf("%w: document has no pages", ErrUnreadable)
	}

	info := Info{PageCount: count}
	text, err := textextract.ExtractPDF(bytes.NewReader(data), int64(len(data)), textLayerSample)
	if err != nil {
		// metadata is optional; pdfcpu already accepted the file
		slog.Debug("read pdf metadata", "error", err)
		return info, nil
	}
	info.Title = text.Title
	info.HasTextLayer = text.HasTextLayer()
	return info, nil
}

// DisplayName picks the name a record is shown under: the declared name,
// else the document title, else the file name without extension.
func DisplayName(declared, title, fileName string) string {
	if s := strings.TrimSpace(declared); s != "" {
		return s
	}
	if s := strings.TrimSpace(title); s != "" {
		return s
	}
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
