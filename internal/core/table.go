package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a parsed tabular file: a header row and its data rows.
type Table struct {
	Name   string // path relative to the extraction root
	Header []string
	Index  HeaderIndex
	Rows   []TableRow
}

// TableRow is a data row with the 1-indexed line it started on.
type TableRow struct {
	Line  int
	Cells []string
}

// ContextCheckInterval is how many rows are read between cancellation checks.
var ContextCheckInterval = 100

// ReadTable parses a CSV file. A leading BOM is dropped and invalid UTF-8 is
// replaced with U+FFFD. An empty file yields a table with no header.
func ReadTable(ctx context.Context, path, name string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	return parseTable(ctx, f, name)
}

func parseTable(ctx context.Context, r io.Reader, name string) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := &Table{Name: name}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		t.Index = HeaderIndex{}
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv %s: %w", name, err)
	}
	t.Header = header
	t.Index = MakeHeaderIndex(header)

	for i := 1; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv %s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)
		t.Rows = append(t.Rows, TableRow{Line: line, Cells: record})
	}

	return t, nil
}
