// Package pages turns a page-range expression such as "1-3, 7" into the
// ordered list of page numbers a transcription job works on.
package pages

import (
	"sort"
	"strconv"
	"strings"
)

// AllSentinel is stored as the page-selection description when every page of
// the document was selected.
const AllSentinel = "all"

// Select parses expr and returns an ascending, duplicate-free list of pages in
// [1, total]. Tokens that do not parse, fall outside the document or describe
// a reversed range are dropped. When all is set, expr is ignored.
func Select(expr string, all bool, total int) []int {
	if total <= 0 {
		return []int{}
	}
	if all {
		out := make([]int, total)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}

	seen := make(map[int]bool)
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		if strings.Contains(tok, "-") {
			startStr, endStr, _ := strings.Cut(tok, "-")
			start, err1 := strconv.Atoi(strings.TrimSpace(startStr))
			end, err2 := strconv.Atoi(strings.TrimSpace(endStr))
			if err1 != nil || err2 != nil || start > end {
				continue
			}
			start = max(start, 1)
			end = min(end, total)
			for p := start; p <= end; p++ {
				seen[p] = true
			}
			continue
		}

		p, err := strconv.Atoi(tok)
		if err != nil || p < 1 || p > total {
			continue
		}
		seen[p] = true
	}

	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Describe returns the page-selection description persisted with a record.
func Describe(expr string, all bool) string {
	if all {
		return AllSentinel
	}
	return strings.TrimSpace(expr)
}

// Compact renders pages back into range notation, e.g. [1 2 3 5] -> "1-3, 5".
func Compact(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	var parts []string
	start, prev := pages[0], pages[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, strconv.Itoa(start)+"-"+strconv.Itoa(prev))
		}
	}
	for _, p := range pages[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		flush()
		start, prev = p, p
	}
	flush()
	return strings.Join(parts, ", ")
}
