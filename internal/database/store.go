package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/esg/internal/core"
)

// Table names for the record kinds an ingestion run writes.
const (
	TableCompanyESG     = "company_esg"
	TableNews           = "esg_news"
	TableCompanyReports = "company_reports"
)

var (
	companyColumns = []string{
		"company", "sentiment_score", "environmental_score", "social_score",
		"governance_score", "esg_score", "ingestion_id",
	}
	newsColumns = []string{
		"title", "summary", "sentiment_score", "sentiment_label", "ingestion_id",
	}
	reportColumns = []string{"company", "report", "ingestion_id"}
)

// Store implements core.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside one transaction and commits only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(core.RecordWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op. A cancelled ctx must not stop it.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(txWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// txWriter bulk-loads records with COPY inside the run's transaction.
type txWriter struct {
	tx pgx.Tx
}

func (w txWriter) InsertCompanyScores(ctx context.Context, ingestionID uuid.UUID, records []core.CompanyScore) (int64, error) {
	n, err := w.tx.CopyFrom(ctx, pgx.Identifier{TableCompanyESG}, companyColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return companyRow(ingestionID, records[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", TableCompanyESG, err)
	}
	return n, nil
}

func (w txWriter) InsertNews(ctx context.Context, ingestionID uuid.UUID, records []core.NewsSentiment) (int64, error) {
	n, err := w.tx.CopyFrom(ctx, pgx.Identifier{TableNews}, newsColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return newsRow(ingestionID, records[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", TableNews, err)
	}
	return n, nil
}

func (w txWriter) InsertReports(ctx context.Context, ingestionID uuid.UUID, records []core.CompanyReport) (int64, error) {
	n, err := w.tx.CopyFrom(ctx, pgx.Identifier{TableCompanyReports}, reportColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return reportRow(ingestionID, records[i])
		}))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", TableCompanyReports, err)
	}
	return n, nil
}

// Row builders follow the order of the matching column list.

func companyRow(ingestionID uuid.UUID, r core.CompanyScore) []any {
	return []any{
		r.Company, r.SentimentScore, r.EnvironmentalScore, r.SocialScore,
		r.GovernanceScore, r.ESGScore, ingestionID,
	}
}

func newsRow(ingestionID uuid.UUID, r core.NewsSentiment) []any {
	return []any{r.Title, r.Summary, r.SentimentScore, r.SentimentLabel, ingestionID}
}

// reportRow encodes the document up front so COPY receives jsonb bytes.
func reportRow(ingestionID uuid.UUID, r core.CompanyReport) ([]any, error) {
	doc, err := json.Marshal(r.Report)
	if err != nil {
		return nil, fmt.Errorf("encode report for %q: %w", r.Company, err)
	}
	return []any{r.Company, doc, ingestionID}, nil
}
