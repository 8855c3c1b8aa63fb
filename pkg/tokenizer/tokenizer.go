// Package tokenizer gives rough token counts for prompts and page images,
// good enough for cost estimates shown before a job runs.
package tokenizer

import (
	"math"
	"strings"
	"unicode/utf8"
)

// CountTokens estimates the tokens in text. It takes the larger of the
// word-based and character-based heuristics, which keeps accented and CJK
// text from being undercounted.
func CountTokens(text string) int {
	byWords := len(strings.Fields(text)) * 4 / 3
	byChars := utf8.RuneCountInString(text) / 4
	return max(byWords, byChars, 1)
}

// Tile pricing used by high-detail vision inputs.
const (
	imageBaseTokens = 85
	imageTileTokens = 170
	imageTileSize   = 512
	imageMaxSide    = 2048
	imageShortSide  = 768
)

// ImageTokens estimates the input tokens of a width x height image sent at
// high detail: the image is fit into 2048x2048, its short side scaled to 768,
// then billed per 512px tile.
func ImageTokens(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	w, h := float64(width), float64(height)
	if long := math.Max(w, h); long > imageMaxSide {
		w, h = w*imageMaxSide/long, h*imageMaxSide/long
	}
	if short := math.Min(w, h); short > imageShortSide {
		w, h = w*imageShortSide/short, h*imageShortSide/short
	}
	tiles := math.Ceil(w/imageTileSize) * math.Ceil(h/imageTileSize)
	return imageBaseTokens + imageTileTokens*int(tiles)
}
