package export

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is the XLSX limit on sheet name length, in characters.
const MaxSheetNameLength = 31

// invalidSheetChars are the characters XLSX forbids in a sheet name.
const invalidSheetChars = `:\/?*[]`

// SheetName returns the sheet name for a table: Page_<page>_Table_<table>.
func SheetName(pageNumber, tableIndex int) string {
	return fmt.Sprintf("Page_%d_Table_%d", pageNumber, tableIndex)
}

// SanitizeSheetName makes name acceptable as an XLSX sheet name. Forbidden
// characters become '_', the result is truncated to MaxSheetNameLength and
// leading and trailing apostrophes are then removed. An empty result becomes
// "Sheet".
func SanitizeSheetName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(invalidSheetChars, r) || r < 0x20 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	cleaned := truncateRunes(b.String(), MaxSheetNameLength)
	cleaned = strings.Trim(cleaned, "'")
	if strings.TrimSpace(cleaned) == "" {
		return "Sheet"
	}
	return cleaned
}

// SheetNamer hands out sanitized, case-insensitively unique sheet names.
type SheetNamer struct {
	used map[string]bool
}

// NewSheetNamer returns a SheetNamer that treats taken as already in use.
func NewSheetNamer(taken ...string) *SheetNamer {
	n := &SheetNamer{used: make(map[string]bool, len(taken))}
	for _, name := range taken {
		n.used[strings.ToLower(name)] = true
	}
	return n
}

// Next returns a unique sanitized variant of name, appending ~2, ~3, ...
// on collision while staying within the length limit. Collisions are found
// case-insensitively, but the returned name keeps the casing of name.
func (n *SheetNamer) Next(name string) string {
	base := SanitizeSheetName(name)
	candidate := base
	for i := 2; n.used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		candidate = truncateRunes(base, MaxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
	}
	n.used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
