package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 1, CountTokens(""))
	assert.Equal(t, 4, CountTokens("one two three"))
	assert.Equal(t, 25, CountTokens(string(make([]rune, 100))))
}

func TestImageTokens(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          int
	}{
		{"empty", 0, 100, 0},
		{"single tile", 512, 512, 85 + 170},
		{"a4 at 2x", 1190, 1684, 85 + 170*6},
		{"oversized", 4000, 4000, 85 + 170*4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ImageTokens(tc.width, tc.height))
		})
	}
}
