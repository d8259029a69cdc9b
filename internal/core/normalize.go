package core

import (
	"errors"
	"fmt"
)

// Batch is the outcome of normalizing one tabular file: the accepted records
// in source row order and the rows that were left out.
type Batch[T any] struct {
	Records []T
	Failed  []FailedRow
}

func (b *Batch[T]) fail(t *Table, row TableRow, err error) {
	b.Failed = append(b.Failed, FailedRow{
		FileName:   t.Name,
		LineNumber: row.Line,
		Reason:     err.Error(),
	})
}

// companyColumns holds resolved positions; optional fields are -1 when absent.
type companyColumns struct {
	company, sentiment int
	environmental      int
	social             int
	governance         int
	esg                int
}

func resolveCompanyColumns(idx HeaderIndex) (companyColumns, error) {
	cols := companyColumns{}
	var missing []string
	var ok bool

	if cols.company, ok = idx.Resolve(colCompany...); !ok {
		missing = append(missing, colCompany[0])
	}
	if cols.sentiment, ok = idx.Resolve(colCompanySentiment...); !ok {
		missing = append(missing, colCompanySentiment[0])
	}
	if len(missing) > 0 {
		return cols, &errMissingColumns{shape: ShapeCompanyESG, missing: missing}
	}

	cols.environmental, _ = idx.Resolve(colEnvironmental...)
	cols.social, _ = idx.Resolve(colSocial...)
	cols.governance, _ = idx.Resolve(colGovernance...)
	cols.esg, _ = idx.Resolve(colESG...)
	return cols, nil
}

// NormalizeCompanyScores converts the rows of a company_esg table into records.
// A missing required column rejects the whole file; a bad value rejects only its row.
func NormalizeCompanyScores(t *Table) (Batch[CompanyScore], error) {
	var batch Batch[CompanyScore]

	cols, err := resolveCompanyColumns(t.Index)
	if err != nil {
		return batch, err
	}

	for _, row := range t.Rows {
		if isEmptyRow(row.Cells) {
			continue
		}
		rec, err := parseCompanyRow(row.Cells, cols)
		if err != nil {
			batch.fail(t, row, err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func parseCompanyRow(row []string, cols companyColumns) (CompanyScore, error) {
	company := cellAt(row, cols.company)
	if company == "" {
		return CompanyScore{}, errors.New("empty required field \"company\"")
	}

	sentiment, err := ParseScore(cellAt(row, cols.sentiment))
	if err != nil {
		return CompanyScore{}, fmt.Errorf("required field \"sentiment_score\": %w", err)
	}

	env, err := optionalScore(row, cols.environmental, "environmental_score")
	if err != nil {
		return CompanyScore{}, err
	}
	soc, err := optionalScore(row, cols.social, "social_score")
	if err != nil {
		return CompanyScore{}, err
	}
	gov, err := optionalScore(row, cols.governance, "governance_score")
	if err != nil {
		return CompanyScore{}, err
	}

	rec := CompanyScore{
		Company:            company,
		SentimentScore:     sentiment,
		EnvironmentalScore: env,
		SocialScore:        soc,
		GovernanceScore:    gov,
	}

	if raw := CleanCell(cellAt(row, cols.esg)); raw != "" {
		esg, err := ParseScore(raw)
		if err != nil {
			return CompanyScore{}, fmt.Errorf("field \"esg_score\": %w", err)
		}
		rec.ESGScore = esg
	} else {
		rec.ESGScore = CompositeScore(sentiment, env, soc, gov)
	}
	return rec, nil
}

// optionalScore reads an optional numeric column. An absent column or blank
// cell is zero; text that is present but not numeric is an error.
func optionalScore(row []string, pos int, field string) (float64, error) {
	raw := CleanCell(cellAt(row, pos))
	if raw == "" {
		return 0, nil
	}
	v, err := ParseScore(raw)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	return v, nil
}

// CompositeScore blends the environmental, social and governance components.
// Zero components count as absent; with none left the sentiment score is used.
func CompositeScore(sentiment, environmental, social, governance float64) float64 {
	var sum float64
	var n int
	for _, c := range []float64{environmental, social, governance} {
		if c != 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return sentiment
	}
	return sum / float64(n)
}

type newsColumns struct {
	title, sentiment int
	summary, label   int
}

func resolveNewsColumns(idx HeaderIndex) (newsColumns, error) {
	cols := newsColumns{}
	var missing []string
	var ok bool

	if cols.title, ok = idx.Resolve(colTitle...); !ok {
		missing = append(missing, colTitle[0])
	}
	if cols.sentiment, ok = idx.Resolve(colNewsSentiment...); !ok {
		missing = append(missing, colNewsSentiment[0])
	}
	if len(missing) > 0 {
		return cols, &errMissingColumns{shape: ShapeNews, missing: missing}
	}

	cols.summary, _ = idx.Resolve(colSummary...)
	cols.label, _ = idx.Resolve(colLabel...)
	return cols, nil
}

// NormalizeNews converts the rows of a news table into records.
func NormalizeNews(t *Table) (Batch[NewsSentiment], error) {
	var batch Batch[NewsSentiment]

	cols, err := resolveNewsColumns(t.Index)
	if err != nil {
		return batch, err
	}

	for _, row := range t.Rows {
		if isEmptyRow(row.Cells) {
			continue
		}
		rec, err := parseNewsRow(row.Cells, cols)
		if err != nil {
			batch.fail(t, row, err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func parseNewsRow(row []string, cols newsColumns) (NewsSentiment, error) {
	title := cellAt(row, cols.title)
	if title == "" {
		return NewsSentiment{}, errors.New("empty required field \"title\"")
	}

	sentiment, err := ParseScore(cellAt(row, cols.sentiment))
	if err != nil {
		return NewsSentiment{}, fmt.Errorf("required field \"sentiment_score\": %w", err)
	}

	return NewsSentiment{
		Title:          title,
		Summary:        cellAt(row, cols.summary),
		SentimentScore: sentiment,
		SentimentLabel: cellAt(row, cols.label),
	}, nil
}
