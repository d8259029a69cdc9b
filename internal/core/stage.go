package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zip"
)

// ChunkSource is implemented by upload sources that can hand over their
// content as a sequence of byte chunks. Chunks are written in the order
// yield receives them; a yield error stops the iteration.
type ChunkSource interface {
	Chunks(yield func([]byte) error) error
}

// StagedArchive is an upload persisted to a temporary file and confirmed to
// be a ZIP container.
type StagedArchive struct {
	Path string
	Size int64
}

// Remove deletes the staged file. A missing file is not an error.
func (s *StagedArchive) Remove() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged archive: %w", err)
	}
	return nil
}

// Stage copies src into a new temporary file under dir (os.TempDir when
// empty) and checks that the result opens as a ZIP archive. When the content
// is not a ZIP the file is removed and an IngestionError is returned.
func Stage(ctx context.Context, src io.Reader, dir string) (*StagedArchive, error) {
	f, err := os.CreateTemp(dir, "esg-upload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	staged := &StagedArchive{Path: f.Name()}

	size, err := writeSource(ctx, f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeStaged(ctx, staged)
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	staged.Size = size

	if err := validateArchive(staged.Path); err != nil {
		removeStaged(ctx, staged)
		return nil, errNotArchive(err)
	}

	return staged, nil
}

func writeSource(ctx context.Context, w io.Writer, src io.Reader) (int64, error) {
	cs, ok := src.(ChunkSource)
	if !ok {
		return io.Copy(w, contextReader{ctx: ctx, r: src})
	}

	var total int64
	err := cs.Chunks(func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		return err
	})
	return total, err
}

func validateArchive(path string) error {
	zr, err := openArchive(path)
	if err != nil {
		return err
	}
	return zr.Close()
}

// openArchive opens a ZIP file. A reader returned together with an error
// means the container parsed but some entry names are not local; those are
// vetted per entry during extraction.
func openArchive(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if zr != nil {
		return zr, nil
	}
	return nil, err
}

func removeStaged(ctx context.Context, staged *StagedArchive) {
	if err := staged.Remove(); err != nil {
		slog.WarnContext(ctx, "failed to remove staged archive", "path", staged.Path, "error", err)
	}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
