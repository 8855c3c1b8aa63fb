// Package marker reads and writes the page-boundary lines that separate the
// per-page blocks of a transcription.
//
// Two shapes exist in stored data:
//
//	--- PÁGINA 1 ---
//	--- PÁGINA 1 (PDF Original: 3) ---
//
// Records carry the version they were written with; Parse accepts both.
package marker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Version int

const (
	// V1 labels each block with its position in the transcription only.
	V1 Version = 1
	// V2 labels each block with its position in the transcription and the
	// page number in the source PDF.
	V2 Version = 2
)

var linePattern = regexp.MustCompile(`(?m)^[ \t]*---[ \t]*P[ÁA]GINA[ \t]+(\d+)(?:[ \t]*\(PDF Original:[ \t]*(\d+)\))?[ \t]*---[ \t]*$`)

// Page is one parsed block. Seq is the block's position in the
// transcription; Original is the source PDF page. V1 markers do not record
// the source page, so Original equals Seq for them.
type Page struct {
	Seq      int
	Original int
	Text     string
}

// Format returns the marker line for a block, without a trailing newline.
func Format(v Version, seq, original int) string {
	if v == V2 {
		return fmt.Sprintf("--- PÁGINA %d (PDF Original: %d) ---", seq, original)
	}
	return fmt.Sprintf("--- PÁGINA %d ---", seq)
}

// Block returns a full block: the marker line, a blank line, the text and a
// blank line.
func Block(v Version, seq, original int, text string) string {
	return Format(v, seq, original) + "\n\n" + text + "\n\n"
}

// Parse splits text on marker lines. Text before the first marker is returned
// as a page with Seq 0 when it is not blank. Text without any marker yields a
// single page with Seq 0.
func Parse(text string) []Page {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	locs := linePattern.FindAllStringSubmatchIndex(text, -1)

	var out []Page
	if len(locs) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			out = append(out, Page{Text: body})
		}
		return out
	}

	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		out = append(out, Page{Text: pre})
	}

	for i, loc := range locs {
		seq, _ := strconv.Atoi(text[loc[2]:loc[3]])
		original := seq
		if loc[4] >= 0 {
			original, _ = strconv.Atoi(text[loc[4]:loc[5]])
		}

		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, Page{
			Seq:      seq,
			Original: original,
			Text:     strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return out
}

// Detect reports which marker shape the text uses. Text with no markers, or
// with only plain markers, is V1.
func Detect(text string) Version {
	for _, m := range linePattern.FindAllStringSubmatchIndex(text, -1) {
		if m[4] >= 0 {
			return V2
		}
	}
	return V1
}

// Count returns the number of marker lines in text.
func Count(text string) int {
	return len(linePattern.FindAllStringIndex(text, -1))
}

// Rewrite re-encodes parsed pages with version v. Pages with Seq 0
// (preamble text) are kept unlabelled at the top.
func Rewrite(pages []Page, v Version) string {
	var b strings.Builder
	seq := 0
	for _, p := range pages {
		if p.Seq == 0 {
			b.WriteString(p.Text)
			b.WriteString("\n\n")
			continue
		}
		seq++
		b.WriteString(Block(v, seq, p.Original, p.Text))
	}
	return b.String()
}
