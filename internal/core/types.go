// Package core provides the business logic for ESG archive ingestion.
// This package has no HTTP or database dependencies and can be used by any frontend.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Shape identifies the logical record layout of a tabular file.
type Shape string

const (
	ShapeUnknown    Shape = "unknown"
	ShapeCompanyESG Shape = "company_esg"
	ShapeNews       Shape = "news"
)

// CompanyScore is one ESG score observation for a company.
// Several records may share a company; the newest CreatedAt is the current one.
type CompanyScore struct {
	ID                 int64     `json:"id" db:"id"`
	Company            string    `json:"company" db:"company"`
	SentimentScore     float64   `json:"sentiment_score" db:"sentiment_score"`
	EnvironmentalScore float64   `json:"environmental_score" db:"environmental_score"`
	SocialScore        float64   `json:"social_score" db:"social_score"`
	GovernanceScore    float64   `json:"governance_score" db:"governance_score"`
	ESGScore           float64   `json:"esg_score" db:"esg_score"`
	IngestionID        uuid.UUID `json:"-" db:"ingestion_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// NewsSentiment is a scored ESG news item.
type NewsSentiment struct {
	ID             int64     `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	Summary        string    `json:"summary" db:"summary"`
	SentimentScore float64   `json:"sentiment_score" db:"sentiment_score"`
	SentimentLabel string    `json:"sentiment_label" db:"sentiment_label"`
	IngestionID    uuid.UUID `json:"-" db:"ingestion_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CompanyReport is an opaque structured document attributed to a company
// by the name of the file it was read from.
type CompanyReport struct {
	ID          int64     `json:"id" db:"id"`
	Company     string    `json:"company" db:"company"`
	Report      any       `json:"report" db:"report"`
	IngestionID uuid.UUID `json:"-" db:"ingestion_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// FailedRow describes a tabular row that was skipped during normalization.
type FailedRow struct {
	FileName   string
	LineNumber int
	Reason     string
}

// SkippedFile describes a file that contributed no records.
type SkippedFile struct {
	FileName string
	Reason   string
}

// Skip reasons recorded for files.
const (
	SkipUnreadable     = "unreadable"
	SkipUnknownSchema  = "unknown_schema"
	SkipMissingColumns = "missing_columns"
	SkipInvalidJSON    = "invalid_json"
)

// SkipSummary counts the units an ingestion run had to leave out.
type SkipSummary struct {
	CompanyRows int
	NewsRows    int
	Files       map[string]int // keyed by skip reason
}

func (s *SkipSummary) addFile(reason string) {
	if s.Files == nil {
		s.Files = make(map[string]int)
	}
	s.Files[reason]++
}

// IngestionResult contains the final result of an ingestion run.
// Zero counts are a valid outcome.
type IngestionResult struct {
	IngestionID       uuid.UUID
	CompaniesInserted int
	NewsInserted      int
	ReportsInserted   int
	Skipped           SkipSummary
	Duration          time.Duration
}

// Store opens the transaction an ingestion run writes through.
// The records written inside fn become visible only if fn returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(RecordWriter) error) error
}

// RecordWriter batch-inserts records inside a Store transaction.
// Each call is a single bulk operation and returns the number of rows written.
type RecordWriter interface {
	InsertCompanyScores(ctx context.Context, ingestionID uuid.UUID, records []CompanyScore) (int64, error)
	InsertNews(ctx context.Context, ingestionID uuid.UUID, records []NewsSentiment) (int64, error)
	InsertReports(ctx context.Context, ingestionID uuid.UUID, records []CompanyReport) (int64, error)
}
