package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	DefaultMaxArchiveEntries = 10000
	DefaultMaxExtractedBytes = 1 << 30
)

// ExtractLimits caps what a single archive may expand to.
// Zero values select the defaults.
type ExtractLimits struct {
	MaxEntries        int
	MaxExtractedBytes int64
}

func (l ExtractLimits) withDefaults() ExtractLimits {
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultMaxArchiveEntries
	}
	if l.MaxExtractedBytes <= 0 {
		l.MaxExtractedBytes = DefaultMaxExtractedBytes
	}
	return l
}

// ScratchDir is a temporary directory holding an extracted archive.
type ScratchDir struct {
	Root string
}

// Close removes the directory tree. It is safe to call more than once.
func (s *ScratchDir) Close() error {
	if s == nil || s.Root == "" {
		return nil
	}
	if err := os.RemoveAll(s.Root); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

// Extract expands the archive at archivePath into a new temporary directory
// under dir. Nothing is left on disk when an error is returned.
//
// Entries naming an absolute path or a path outside the directory abort the
// extraction, as does exceeding limits. Symbolic links are not materialized.
func Extract(ctx context.Context, archivePath, dir string, limits ExtractLimits) (*ScratchDir, error) {
	limits = limits.withDefaults()

	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, errUnreadableArchive(err)
	}
	defer zr.Close()

	root, err := os.MkdirTemp(dir, "esg-extract-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	scratch := &ScratchDir{Root: root}

	if err := extractEntries(ctx, zr.File, root, limits); err != nil {
		if cerr := scratch.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to remove scratch dir", "path", root, "error", cerr)
		}
		return nil, err
	}
	return scratch, nil
}

func extractEntries(ctx context.Context, files []*zip.File, root string, limits ExtractLimits) error {
	var (
		entries int
		written int64
	)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(root, f.Name)
		if err != nil {
			return errUnsafeEntry(f.Name)
		}
		if target == root {
			continue
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("create directory %s: %w", f.Name, err)
			}
			continue
		case mode&os.ModeSymlink != 0:
			slog.WarnContext(ctx, "skipping symlink entry in archive", "entry", f.Name)
			continue
		case !mode.IsRegular():
			slog.WarnContext(ctx, "skipping non-regular entry in archive", "entry", f.Name, "mode", mode.String())
			continue
		}

		entries++
		if entries > limits.MaxEntries {
			return errArchiveTooLarge(fmt.Sprintf("number of entries (%d)", limits.MaxEntries))
		}

		n, err := extractFile(f, target, limits.MaxExtractedBytes-written)
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one entry to target, reading at most budget bytes.
func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, errUnreadableArchive(err)
	}
	defer rc.Close()

	// #nosec G304 -- target is validated by safeJoin.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", f.Name, err)
	}

	src := &entryReader{r: io.LimitReader(rc, budget+1)}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil && cerr != nil {
		return n, fmt.Errorf("write %s: %w", f.Name, cerr)
	}
	if src.err != nil {
		return n, errUnreadableArchive(src.err)
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", f.Name, err)
	}
	if n > budget {
		return n, errArchiveTooLarge("extracted size")
	}
	return n, nil
}

// entryReader records read-side failures so they can be told apart from
// failures writing the extracted copy.
type entryReader struct {
	r   io.Reader
	err error
}

func (e *entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		e.err = err
	}
	return n, err
}

// safeJoin resolves an archive entry name under base, rejecting absolute
// names and names that climb out of base.
func safeJoin(base, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute archive path: %s", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("absolute archive path: %s", name)
	}
	target := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid archive path: %s", name)
	}
	return target, nil
}
