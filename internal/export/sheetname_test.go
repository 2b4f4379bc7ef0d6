package export

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Page_1_Table_1", SheetName(1, 1))
	assert.Equal(t, "Page_12_Table_3", SheetName(12, 3))
}

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unchanged", "Page_1_Table_1", "Page_1_Table_1"},
		{"forbidden characters", `a:b\c/d?e*f[g]h`, "a_b_c_d_e_f_g_h"},
		{"apostrophes trimmed", "'quoted'", "quoted"},
		{"empty", "", "Sheet"},
		{"only apostrophes", "''", "Sheet"},
		{"control characters", "a\tb", "a_b"},
		{"truncated", strings.Repeat("x", 40), strings.Repeat("x", 31)},
		{"multibyte truncated by rune", strings.Repeat("表", 40), strings.Repeat("表", 31)},
		{"apostrophe at truncation point", strings.Repeat("a", 30) + "'bbb", strings.Repeat("a", 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeSheetName(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxSheetNameLength)
		})
	}
}

func TestSheetNamer_Unique(t *testing.T) {
	n := NewSheetNamer()

	assert.Equal(t, "Page_1_Table_1", n.Next("Page_1_Table_1"))
	assert.Equal(t, "Page_1_Table_1~2", n.Next("Page_1_Table_1"))
	assert.Equal(t, "page_1_table_1~3", n.Next("page_1_table_1"))

	long := strings.Repeat("y", 31)
	assert.Equal(t, long, n.Next(long))
	second := n.Next(long)
	assert.Equal(t, strings.Repeat("y", 29)+"~2", second)
	assert.Equal(t, MaxSheetNameLength, utf8.RuneCountInString(second))
}

func TestSheetNamer_Taken(t *testing.T) {
	n := NewSheetNamer("Sheet1", "PAGE_1_TABLE_1")

	assert.Equal(t, "Page_1_Table_1~2", n.Next("Page_1_Table_1"))
	assert.Equal(t, "Page_2_Table_1", n.Next("Page_2_Table_1"))
}
