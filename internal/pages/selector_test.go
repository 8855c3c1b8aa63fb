package pages

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		all   bool
		total int
		want  []int
	}{
		{"dedup and sort", "3,1-2,2", false, 5, []int{1, 2, 3}},
		{"invalid tokens dropped", "0,6,2-1,abc,3", false, 5, []int{3}},
		{"all ignores text", "99", true, 4, []int{1, 2, 3, 4}},
		{"empty string", "", false, 10, []int{}},
		{"whitespace tokens", " 2 , 4 - 5 ,", false, 10, []int{2, 4, 5}},
		{"range clamped", "3-99", false, 5, []int{3, 4, 5}},
		{"range below one clamped", "0-2", false, 5, []int{1, 2}},
		{"range outside bounds", "7-9", false, 5, []int{}},
		{"half range", "3-", false, 5, []int{}},
		{"malformed among valid", "1,x-2,4", false, 5, []int{1, 4}},
		{"zero total", "1-3", false, 0, []int{}},
		{"all with zero total", "", true, 0, []int{}},
		{"negative looking token", "-2", false, 5, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.expr, tt.all, tt.total)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_AlwaysSortedAndUnique(t *testing.T) {
	exprs := []string{"5,4,3,2,1", "1-10,5-15,3", "9,9,9,1-2,2-3", "20-25,1,1,1"}
	for _, expr := range exprs {
		got := Select(expr, false, 12)
		assert.True(t, sort.IntsAreSorted(got), expr)
		seen := map[int]bool{}
		for _, p := range got {
			assert.False(t, seen[p], "duplicate %d in %v", p, got)
			assert.GreaterOrEqual(t, p, 1)
			assert.LessOrEqual(t, p, 12)
			seen[p] = true
		}
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, AllSentinel, Describe("1-3", true))
	assert.Equal(t, "1-3, 7", Describe("  1-3, 7 ", false))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "", Compact(nil))
	assert.Equal(t, "4", Compact([]int{4}))
	assert.Equal(t, "1-3, 5, 7-8", Compact([]int{1, 2, 3, 5, 7, 8}))
}
