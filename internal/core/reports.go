package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

var (
	errEmptyReport  = errors.New("empty report")
	errTrailingData = errors.New("unexpected data after report document")
)

// ReportCompany derives the owning company from a report's file name:
// the base name without its extension, kept exactly as written.
func ReportCompany(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

// CollectReports decodes each report file under root into a CompanyReport.
// A file that cannot be read or is not a single JSON document is returned as
// a SkippedFile and does not affect the others. The only error is ctx's.
func CollectReports(ctx context.Context, root string, files []string) ([]CompanyReport, []SkippedFile, error) {
	var (
		reports []CompanyReport
		skipped []SkippedFile
	)

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		doc, err := readReport(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			skipped = append(skipped, SkippedFile{FileName: name, Reason: err.Error()})
			continue
		}

		reports = append(reports, CompanyReport{
			Company: ReportCompany(name),
			Report:  doc,
		})
	}

	return reports, skipped, nil
}

func readReport(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Numbers stay json.Number so large integers reach JSONB unchanged.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyReport
		}
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return doc, nil
}
