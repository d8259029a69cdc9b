package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/database"
	"github.com/JonMunkholm/esg/internal/scoring"
)

// companySummary is the list view of a company record.
type companySummary struct {
	ID                 int64   `json:"id"`
	Company            string  `json:"company"`
	ESGScore           float64 `json:"esg_score"`
	EnvironmentalScore float64 `json:"environmental_score"`
	SocialScore        float64 `json:"social_score"`
	GovernanceScore    float64 `json:"governance_score"`
	SentimentScore     float64 `json:"sentiment_score"`
}

// handleListCompanies returns the newest record per company.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.deps.Catalog.ListLatestCompanies(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgUnexpected})
		return
	}

	out := make([]companySummary, 0, len(companies))
	for _, c := range companies {
		out = append(out, companySummary{
			ID:                 c.ID,
			Company:            c.Company,
			ESGScore:           c.ESGScore,
			EnvironmentalScore: c.EnvironmentalScore,
			SocialScore:        c.SocialScore,
			GovernanceScore:    c.GovernanceScore,
			SentimentScore:     c.SentimentScore,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: msgNotFound})
		return
	}

	company, err := s.deps.Catalog.GetCompany(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: msgNotFound})
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgUnexpected})
	default:
		writeJSON(w, http.StatusOK, company)
	}
}

func (s *Server) handleListNews(w http.ResponseWriter, r *http.Request) {
	news, err := s.deps.Catalog.ListNews(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgUnexpected})
		return
	}
	if news == nil {
		news = []core.NewsSentiment{}
	}
	writeJSON(w, http.StatusOK, news)
}

// handleCompanyReport returns the newest report for a company name,
// matched case-insensitively.
func (s *Server) handleCompanyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Catalog.LatestReport(r.Context(), chi.URLParam(r, "company"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: msgReportNotFound})
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgUnexpected})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// predictFields lists the request fields in model feature order.
var predictFields = [scoring.FeatureCount]string{
	"sentiment_score", "environmental_score", "social_score", "governance_score",
}

type predictResponse struct {
	PredictedESGScore float64 `json:"predicted_esg_score"`
}

// handlePredict scores the four submitted component values.
// Field errors come back as {"field": ["message"]}.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: msgMalformedJSON})
		return
	}

	features, fieldErrs := parseFeatures(body)
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	score, err := s.deps.Predictor.Predict(features)
	switch {
	case errors.Is(err, scoring.ErrUnavailable):
		s.respondError(w, r, err, http.StatusServiceUnavailable, detailResponse{
			Detail: fmt.Sprintf("Prediction model is not available. Ensure the `%s` file exists and is valid.", s.cfg.Model.Path),
		})
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgPredictFailed})
	default:
		writeJSON(w, http.StatusOK, predictResponse{PredictedESGScore: score})
	}
}

// parseFeatures reads the feature fields. Numbers and numeric strings are
// accepted; anything else, or a non-finite value, is a field error.
func parseFeatures(body map[string]any) (scoring.Features, map[string][]string) {
	var (
		features scoring.Features
		errs     = map[string][]string{}
	)

	for i, name := range predictFields {
		raw, ok := body[name]
		if !ok || raw == nil {
			errs[name] = []string{"This field is required."}
			continue
		}

		var (
			v   float64
			err error
		)
		switch x := raw.(type) {
		case float64:
			v = x
		case string:
			v, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
		default:
			err = errors.New("not a number")
		}
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs[name] = []string{"A valid number is required."}
			continue
		}
		features[i] = v
	}
	return features, errs
}
