package core

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// archiveFiles lists the ingestible files found under a scratch root.
// Paths are slash-separated and relative to the root.
type archiveFiles struct {
	Tabular []string
	Reports []string
}

// discoverFiles walks root at any depth and sorts candidates by path so a
// run over the same archive always processes files in the same order.
func discoverFiles(ctx context.Context, root string) (archiveFiles, error) {
	var found archiveFiles

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			found.Tabular = append(found.Tabular, rel)
		case ".json":
			found.Reports = append(found.Reports, rel)
		}
		return nil
	})
	if err != nil {
		return archiveFiles{}, err
	}

	sort.Strings(found.Tabular)
	sort.Strings(found.Reports)
	return found, nil
}
