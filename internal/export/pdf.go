package export

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/nikhilbhutani/pagescribe/internal/marker"
)

type Options struct {
	HeaderBanner string
	FooterBanner string
}

const (
	bodyFontSize   = 11
	bodyLineHeight = 5.5
	fontFamily     = "DejaVu"
)

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
	//go:embed fonts/DejaVuSansCondensed-Oblique.ttf
	fontItalic []byte
)

// PDF writes text as an A4 document with one physical page per transcribed
// page. A page whose text does not fit continues on the next sheet.
func PDF(w io.Writer, title, text string, opts Options) error {
	doc := fpdf.New("P", "mm", "A4", "")
	// UTF-8 fonts so any script in the transcription survives
	doc.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	doc.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	doc.AddUTF8FontFromBytes(fontFamily, "I", fontItalic)

	doc.SetTitle(title, true)
	doc.SetCreator("pagescribe", true)
	doc.SetMargins(18, 22, 18)
	doc.SetAutoPageBreak(true, 22)
	doc.AliasNbPages("")

	doc.SetHeaderFunc(func() {
		doc.SetY(8)
		doc.SetFont(fontFamily, "I", 8)
		doc.SetTextColor(120, 120, 120)
		doc.CellFormat(0, 5, opts.HeaderBanner, "B", 1, "C", false, 0, "")
		doc.SetY(22)
		doc.SetTextColor(0, 0, 0)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-16)
		doc.SetFont(fontFamily, "I", 8)
		doc.SetTextColor(120, 120, 120)
		doc.CellFormat(0, 4, opts.FooterBanner, "T", 1, "C", false, 0, "")
		doc.CellFormat(0, 4, fmt.Sprintf("%d / {nb}", doc.PageNo()), "", 0, "C", false, 0, "")
		doc.SetTextColor(0, 0, 0)
	})

	pages := marker.Parse(CleanText(text))
	showOriginal := marker.Detect(text) == marker.V2
	if len(pages) == 0 {
		pages = []marker.Page{{}}
	}

	for _, p := range pages {
		doc.AddPage()
		if heading := pageHeading(p, showOriginal); heading != "" {
			doc.SetFont(fontFamily, "B", 13)
			doc.CellFormat(0, 8, heading, "", 1, "L", false, 0, "")
			doc.Ln(2)
		}
		doc.SetFont(fontFamily, "", bodyFontSize)
		doc.MultiCell(0, bodyLineHeight, p.Text, "", "L", false)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pageHeading(p marker.Page, showOriginal bool) string {
	switch {
	case p.Seq == 0:
		return ""
	case showOriginal:
		return fmt.Sprintf("Page %d (PDF page %d)", p.Seq, p.Original)
	default:
		return fmt.Sprintf("Page %d", p.Seq)
	}
}
