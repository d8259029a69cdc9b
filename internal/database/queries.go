package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/JonMunkholm/esg/internal/core"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const (
	listLatestCompaniesSQL = `
SELECT DISTINCT ON (company)
       id, company, sentiment_score, environmental_score, social_score,
       governance_score, esg_score, ingestion_id, created_at
  FROM company_esg
 ORDER BY company, created_at DESC, id DESC`

	getCompanySQL = `
SELECT id, company, sentiment_score, environmental_score, social_score,
       governance_score, esg_score, ingestion_id, created_at
  FROM company_esg
 WHERE id = $1`

	listNewsSQL = `
SELECT id, title, summary, sentiment_score, sentiment_label, ingestion_id, created_at
  FROM esg_news
 ORDER BY created_at DESC, id DESC`

	latestReportSQL = `
SELECT id, company, report, ingestion_id, created_at
  FROM company_reports
 WHERE lower(company) = lower($1)
 ORDER BY created_at DESC, id DESC
 LIMIT 1`
)

// ListLatestCompanies returns the newest score record of every company,
// ordered by company name.
func (s *Store) ListLatestCompanies(ctx context.Context) ([]core.CompanyScore, error) {
	companies := []core.CompanyScore{}
	if err := pgxscan.Select(ctx, s.pool, &companies, listLatestCompaniesSQL); err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// GetCompany returns one score record by id.
func (s *Store) GetCompany(ctx context.Context, id int64) (core.CompanyScore, error) {
	var company core.CompanyScore
	if err := pgxscan.Get(ctx, s.pool, &company, getCompanySQL, id); err != nil {
		if pgxscan.NotFound(err) {
			return core.CompanyScore{}, ErrNotFound
		}
		return core.CompanyScore{}, fmt.Errorf("get company %d: %w", id, err)
	}
	return company, nil
}

// ListNews returns every news record, newest first.
func (s *Store) ListNews(ctx context.Context) ([]core.NewsSentiment, error) {
	news := []core.NewsSentiment{}
	if err := pgxscan.Select(ctx, s.pool, &news, listNewsSQL); err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	return news, nil
}

// reportRecord mirrors a company_reports row with the document left encoded.
type reportRecord struct {
	ID          int64     `db:"id"`
	Company     string    `db:"company"`
	Report      []byte    `db:"report"`
	IngestionID uuid.UUID `db:"ingestion_id"`
	CreatedAt   time.Time `db:"created_at"`
}

// LatestReport returns the newest report whose company matches name
// case-insensitively.
func (s *Store) LatestReport(ctx context.Context, name string) (core.CompanyReport, error) {
	var rec reportRecord
	if err := pgxscan.Get(ctx, s.pool, &rec, latestReportSQL, name); err != nil {
		if pgxscan.NotFound(err) {
			return core.CompanyReport{}, ErrNotFound
		}
		return core.CompanyReport{}, fmt.Errorf("latest report for %q: %w", name, err)
	}

	return core.CompanyReport{
		ID:          rec.ID,
		Company:     rec.Company,
		Report:      json.RawMessage(rec.Report),
		IngestionID: rec.IngestionID,
		CreatedAt:   rec.CreatedAt,
	}, nil
}
