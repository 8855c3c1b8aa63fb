// Package export turns stored transcriptions into downloadable files.
package export

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/pagescribe/internal/marker"
)

var (
	fenceLine  = regexp.MustCompile("^[ \t]*```[A-Za-z0-9_-]*[ \t]*$")
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// CleanText prepares a transcription for plain-text download. Code fences
// the model wrapped around a page are dropped, trailing spaces removed and
// runs of blank lines collapsed to one. Page markers are kept.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if fenceLine.MatchString(line) {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t"))
	}
	cleaned := blankLines.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	return cleaned + "\n"
}

// PageRow is one entry of the page table.
type PageRow struct {
	Seq      int `json:"seq"`
	Original int `json:"original"`
	Chars    int `json:"chars"`
	Words    int `json:"words"`
}

// PageTable maps sequential page numbers to original PDF pages. Text before
// the first marker is not a page and is left out.
func PageTable(text string) []PageRow {
	parsed := marker.Parse(text)
	rows := make([]PageRow, 0, len(parsed))
	for _, p := range parsed {
		if p.Seq == 0 {
			continue
		}
		rows = append(rows, PageRow{
			Seq:      p.Seq,
			Original: p.Original,
			Chars:    utf8.RuneCountInString(p.Text),
			Words:    len(strings.Fields(p.Text)),
		})
	}
	return rows
}
