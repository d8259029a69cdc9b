package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/esg/internal/logging"
)

// Outcome classifies how an ingestion run ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected" // archive refused with an IngestionError
	OutcomeBusy     Outcome = "busy"     // no run slot available
	OutcomeFailed   Outcome = "failed"
)

// OutcomeOf maps the error returned by Ingest to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrTooManyUploads):
		return OutcomeBusy
	}
	if _, ok := AsIngestionError(err); ok {
		return OutcomeRejected
	}
	return OutcomeFailed
}

// Recorder observes finished runs, successful or not.
type Recorder interface {
	RunFinished(outcome Outcome, result IngestionResult)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(Outcome, IngestionResult) {}

// CommittedRun is handed to commit hooks after the transaction commits.
// ArchivePath stays valid until the last hook returns.
type CommittedRun struct {
	Result      IngestionResult
	ArchivePath string
}

// CommitHook runs after a successful commit. Hooks cannot fail the run.
type CommitHook func(ctx context.Context, run CommittedRun)

// Ingester turns uploaded archives into persisted records.
type Ingester struct {
	store    Store
	tempDir  string
	limits   ExtractLimits
	limiter  *RunLimiter
	hooks    []CommitHook
	recorder Recorder
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithTempDir sets the parent directory for staged and extracted files.
func WithTempDir(dir string) Option {
	return func(in *Ingester) { in.tempDir = dir }
}

// WithLimits bounds how large an archive may expand.
func WithLimits(limits ExtractLimits) Option {
	return func(in *Ingester) { in.limits = limits }
}

// WithLimiter bounds the number of concurrent runs.
func WithLimiter(l *RunLimiter) Option {
	return func(in *Ingester) { in.limiter = l }
}

// WithCommitHook appends a hook run after each successful commit.
func WithCommitHook(h CommitHook) Option {
	return func(in *Ingester) { in.hooks = append(in.hooks, h) }
}

// WithRecorder reports every finished run to r.
func WithRecorder(r Recorder) Option {
	return func(in *Ingester) { in.recorder = r }
}

// NewIngester creates an Ingester writing through store.
func NewIngester(store Store, opts ...Option) *Ingester {
	in := &Ingester{
		store:    store,
		limits:   ExtractLimits{}.withDefaults(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest stages, extracts and persists one archive.
//
// All records land in a single transaction: on any error nothing is
// persisted and the returned counts are zero. Only archive-level input faults
// come back as *IngestionError; rows and files that cannot be used are left
// out and reported in the result's Skipped summary. Temporary files are
// removed before Ingest returns.
func (in *Ingester) Ingest(ctx context.Context, src io.Reader) (result IngestionResult, err error) {
	start := time.Now()
	result.IngestionID = uuid.New()
	logger := logging.WithFields(ctx, "ingestion_id", result.IngestionID)

	defer func() {
		result.Duration = time.Since(start)
		in.recorder.RunFinished(OutcomeOf(err), result)
	}()

	if in.limiter != nil {
		if err := in.limiter.Acquire(ctx); err != nil {
			return result, err
		}
		defer in.limiter.Release()
	}

	staged, err := Stage(ctx, src, in.tempDir)
	if err != nil {
		logger.Warn("archive staging failed", "error", err)
		return result, err
	}
	defer func() {
		if rerr := staged.Remove(); rerr != nil {
			logger.Warn("failed to remove staged archive", "path", staged.Path, "error", rerr)
		}
	}()
	logger.Info("archive staged", "bytes", staged.Size)

	scratch, err := Extract(ctx, staged.Path, in.tempDir, in.limits)
	if err != nil {
		logger.Warn("archive extraction failed", "error", err)
		return result, err
	}
	defer func() {
		if cerr := scratch.Close(); cerr != nil {
			logger.Warn("failed to remove scratch dir", "path", scratch.Root, "error", cerr)
		}
	}()

	files, err := discoverFiles(ctx, scratch.Root)
	if err != nil {
		return result, fmt.Errorf("list extracted files: %w", err)
	}

	var tally IngestionResult
	err = in.store.WithTx(ctx, func(w RecordWriter) error {
		tally = IngestionResult{IngestionID: result.IngestionID}
		r := run{id: result.IngestionID, root: scratch.Root, writer: w, logger: logger, tally: &tally}
		if err := r.ingestTabular(ctx, files.Tabular); err != nil {
			return err
		}
		return r.ingestReports(ctx, files.Reports)
	})
	if err != nil {
		logger.Error("ingestion rolled back", "error", err)
		return result, fmt.Errorf("ingest archive: %w", err)
	}

	result.CompaniesInserted = tally.CompaniesInserted
	result.NewsInserted = tally.NewsInserted
	result.ReportsInserted = tally.ReportsInserted
	result.Skipped = tally.Skipped

	logger.Info("ingestion committed",
		"companies", result.CompaniesInserted,
		"news", result.NewsInserted,
		"reports", result.ReportsInserted,
		"rows_skipped", result.Skipped.CompanyRows+result.Skipped.NewsRows,
		"duration", time.Since(start),
	)

	in.runHooks(context.WithoutCancel(ctx), CommittedRun{Result: result, ArchivePath: staged.Path}, logger)
	return result, nil
}

func (in *Ingester) runHooks(ctx context.Context, committed CommittedRun, logger *slog.Logger) {
	for _, hook := range in.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in commit hook", "panic", r)
				}
			}()
			hook(ctx, committed)
		}()
	}
}

// WaitForUploads blocks until in-flight runs finish or ctx is done.
func (in *Ingester) WaitForUploads(ctx context.Context) error {
	if in.limiter == nil {
		return nil
	}
	return in.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports run slot usage; ok is false when runs are unbounded.
func (in *Ingester) LimiterStatus() (status RunLimiterStatus, ok bool) {
	if in.limiter == nil {
		return RunLimiterStatus{}, false
	}
	return in.limiter.Status(), true
}

// run carries the state of one transaction attempt.
type run struct {
	id     uuid.UUID
	root   string
	writer RecordWriter
	logger *slog.Logger
	tally  *IngestionResult
}

func (r *run) ingestTabular(ctx context.Context, files []string) error {
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.ingestTable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// ingestTable processes one tabular file. Problems with the file itself are
// logged and skipped; the returned error is reserved for the store and ctx.
func (r *run) ingestTable(ctx context.Context, name string) error {
	logger := r.logger.With("file", name)

	t, err := ReadTable(ctx, filepath.Join(r.root, filepath.FromSlash(name)), name)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("skipping unreadable csv", "error", err)
		r.tally.Skipped.addFile(SkipUnreadable)
		return nil
	}

	switch shape := Sniff(t.Index); shape {
	case ShapeCompanyESG:
		batch, err := NormalizeCompanyScores(t)
		if err != nil {
			logger.Warn("skipping csv", "shape", shape, "error", err)
			r.tally.Skipped.addFile(SkipMissingColumns)
			return nil
		}
		r.logFailedRows(logger, batch.Failed)
		r.tally.Skipped.CompanyRows += len(batch.Failed)

		n, err := insertBatch(ctx, r.id, batch.Records, r.writer.InsertCompanyScores)
		if err != nil {
			return fmt.Errorf("insert company scores from %s: %w", name, err)
		}
		r.tally.CompaniesInserted += n

	case ShapeNews:
		batch, err := NormalizeNews(t)
		if err != nil {
			logger.Warn("skipping csv", "shape", shape, "error", err)
			r.tally.Skipped.addFile(SkipMissingColumns)
			return nil
		}
		r.logFailedRows(logger, batch.Failed)
		r.tally.Skipped.NewsRows += len(batch.Failed)

		n, err := insertBatch(ctx, r.id, batch.Records, r.writer.InsertNews)
		if err != nil {
			return fmt.Errorf("insert news from %s: %w", name, err)
		}
		r.tally.NewsInserted += n

	default:
		logger.Info("skipping csv with unsupported columns", "columns", t.Header)
		r.tally.Skipped.addFile(SkipUnknownSchema)
	}
	return nil
}

func (r *run) ingestReports(ctx context.Context, files []string) error {
	reports, skipped, err := CollectReports(ctx, r.root, files)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		r.logger.Warn("skipping json report", "file", s.FileName, "reason", s.Reason)
		r.tally.Skipped.addFile(SkipInvalidJSON)
	}

	n, err := insertBatch(ctx, r.id, reports, r.writer.InsertReports)
	if err != nil {
		return fmt.Errorf("insert reports: %w", err)
	}
	r.tally.ReportsInserted += n
	return nil
}

func (r *run) logFailedRows(logger *slog.Logger, failed []FailedRow) {
	for _, f := range failed {
		logger.Warn("skipping row", "line", f.LineNumber, "reason", f.Reason)
	}
}

// insertBatch issues one bulk insert, or none for an empty batch.
func insertBatch[T any](ctx context.Context, id uuid.UUID, records []T, insert func(context.Context, uuid.UUID, []T) (int64, error)) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := insert(ctx, id, records)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
