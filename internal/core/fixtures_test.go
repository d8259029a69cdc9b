package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// memStore is a transactional in-memory Store. Writes made inside WithTx are
// buffered and only become visible when fn returns nil.
type memStore struct {
	mu        sync.Mutex
	companies []CompanyScore
	news      []NewsSentiment
	reports   []CompanyReport

	// failOn makes the named insert return errInjected.
	failOn string
	calls  []string
}

var errInjected = errors.New("injected store failure")

type memTx struct {
	store     *memStore
	companies []CompanyScore
	news      []NewsSentiment
	reports   []CompanyReport
}

func (s *memStore) WithTx(ctx context.Context, fn func(RecordWriter) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = append(s.companies, tx.companies...)
	s.news = append(s.news, tx.news...)
	s.reports = append(s.reports, tx.reports...)
	return nil
}

func (s *memStore) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if s.failOn == call {
		return errInjected
	}
	return nil
}

func (s *memStore) counts() (companies, news, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.companies), len(s.news), len(s.reports)
}

func (tx *memTx) InsertCompanyScores(ctx context.Context, id uuid.UUID, records []CompanyScore) (int64, error) {
	if err := tx.store.record("companies"); err != nil {
		return 0, err
	}
	for _, r := range records {
		r.IngestionID = id
		tx.companies = append(tx.companies, r)
	}
	return int64(len(records)), nil
}

func (tx *memTx) InsertNews(ctx context.Context, id uuid.UUID, records []NewsSentiment) (int64, error) {
	if err := tx.store.record("news"); err != nil {
		return 0, err
	}
	for _, r := range records {
		r.IngestionID = id
		tx.news = append(tx.news, r)
	}
	return int64(len(records)), nil
}

func (tx *memTx) InsertReports(ctx context.Context, id uuid.UUID, records []CompanyReport) (int64, error) {
	if err := tx.store.record("reports"); err != nil {
		return 0, err
	}
	for _, r := range records {
		r.IngestionID = id
		tx.reports = append(tx.reports, r)
	}
	return int64(len(records)), nil
}

// zipBytes builds an in-memory archive from name -> content pairs.
// Names ending in "/" become directory entries.
func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// requireEmptyDir fails if dir holds anything.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	require.Empty(t, names, "temporary files left behind")
}
