package core

// convert.go provides cell cleanup and type coercion for tabular ESG data.
//
// These functions handle the messy reality of exported spreadsheets:
//   - Excel formula prefixes (="value")
//   - Stray surrounding quotes and whitespace
//   - Headers that differ only in case
//
// Coercion failures are returned as errors so a single row can be skipped.

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var errEmptyValue = errors.New("empty value")

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. When a header repeats,
// the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, seen := idx[key]; seen {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Has reports whether every name is present in the header.
func (idx HeaderIndex) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := idx[strings.ToLower(name)]; !ok {
			return false
		}
	}
	return true
}

// Resolve returns the position of the first synonym present in the header.
// Synonyms are tried in order and matched case-insensitively.
func (idx HeaderIndex) Resolve(synonyms ...string) (int, bool) {
	for _, name := range synonyms {
		if pos, ok := idx[strings.ToLower(name)]; ok {
			return pos, true
		}
	}
	return -1, false
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// ParseScore converts a cell to a finite float64.
// Empty cells, non-numeric text, NaN and infinities are errors.
func ParseScore(s string) (float64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, errEmptyValue
	}
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q: not finite", s)
	}
	return f, nil
}

// cellAt returns the trimmed cell at pos, or "" when the row is too short
// or the column is absent (pos < 0). Text is otherwise kept as written;
// spreadsheet artifacts are stripped only when a cell is parsed as a number.
func cellAt(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
