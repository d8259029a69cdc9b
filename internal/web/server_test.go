package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/esg/internal/config"
	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/database"
	"github.com/JonMunkholm/esg/internal/scoring"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type ingestFunc func(ctx context.Context, src io.Reader) (core.IngestionResult, error)

func (f ingestFunc) Ingest(ctx context.Context, src io.Reader) (core.IngestionResult, error) {
	return f(ctx, src)
}

type fakeCatalog struct {
	companies []core.CompanyScore
	news      []core.NewsSentiment
	reports   []core.CompanyReport
	err       error
}

func (c *fakeCatalog) ListLatestCompanies(context.Context) ([]core.CompanyScore, error) {
	return c.companies, c.err
}

func (c *fakeCatalog) GetCompany(_ context.Context, id int64) (core.CompanyScore, error) {
	if c.err != nil {
		return core.CompanyScore{}, c.err
	}
	for _, co := range c.companies {
		if co.ID == id {
			return co, nil
		}
	}
	return core.CompanyScore{}, database.ErrNotFound
}

func (c *fakeCatalog) ListNews(context.Context) ([]core.NewsSentiment, error) {
	return c.news, c.err
}

func (c *fakeCatalog) LatestReport(_ context.Context, company string) (core.CompanyReport, error) {
	for _, r := range c.reports {
		if strings.EqualFold(r.Company, company) {
			return r, nil
		}
	}
	return core.CompanyReport{}, database.ErrNotFound
}

type predictFunc func(scoring.Features) (float64, error)

func (f predictFunc) Predict(x scoring.Features) (float64, error) { return f(x) }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// txStore is a minimal core.Store that keeps committed record counts.
type txStore struct {
	mu                       sync.Mutex
	companies, news, reports int
}

func (s *txStore) WithTx(ctx context.Context, fn func(core.RecordWriter) error) error {
	w := &txWriter{}
	if err := fn(w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies += w.companies
	s.news += w.news
	s.reports += w.reports
	return nil
}

type txWriter struct{ companies, news, reports int }

func (w *txWriter) InsertCompanyScores(_ context.Context, _ uuid.UUID, r []core.CompanyScore) (int64, error) {
	w.companies += len(r)
	return int64(len(r)), nil
}

func (w *txWriter) InsertNews(_ context.Context, _ uuid.UUID, r []core.NewsSentiment) (int64, error) {
	w.news += len(r)
	return int64(len(r)), nil
}

func (w *txWriter) InsertReports(_ context.Context, _ uuid.UUID, r []core.CompanyReport) (int64, error) {
	w.reports += len(r)
	return int64(len(r)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	vars := map[string]string{
		"DATABASE_URL":       "postgres://localhost/test",
		"RATE_LIMIT_ENABLED": "false",
		"UPLOAD_TIMEOUT":     "5s",
	}
	cfg, err := config.LoadFrom(func(k string) (string, bool) { v, ok := vars[k]; return v, ok })
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Catalog == nil {
		deps.Catalog = &fakeCatalog{}
	}
	s := NewServer(testConfig(t), deps)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// multipartBody builds a multipart form with one file part.
func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func uploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-zip/", body)
	req.Header.Set("Content-Type", ct)
	return req
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestUploadZip_EndToEnd(t *testing.T) {
	store := &txStore{}
	ingester := core.NewIngester(store, core.WithTempDir(t.TempDir()))
	s := newTestServer(t, Deps{Ingester: ingester})

	archive := zipArchive(t, map[string]string{
		"companies.csv": "company,sentiment_score,environmental_score,social_score,governance_score\nAcme,0.5,2,4,0\nGlobex,bad,1,1,1\n",
		"news.csv":      "title,summary,sentiment_score,sentiment_label\nPlant opens,Solar,0.8,positive\n",
		"TCS.json":      `{"year": 2024}`,
	})

	rec, body := do(t, s, uploadRequest(t, "bundle.zip", "application/zip", archive))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "success", body["status"])
	require.Equal(t, float64(1), body["companies_inserted"])
	require.Equal(t, float64(1), body["news_inserted"])
	require.Equal(t, float64(1), body["reports_inserted"])
	require.Equal(t, 1, store.companies)
}

func TestUploadZip_Validation(t *testing.T) {
	called := false
	s := newTestServer(t, Deps{Ingester: ingestFunc(func(context.Context, io.Reader) (core.IngestionResult, error) {
		called = true
		return core.IngestionResult{}, nil
	})})

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, "other", "a.zip", "application/zip", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload-zip/", body)
		req.Header.Set("Content-Type", ct)

		rec, resp := do(t, s, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, msgNoFile, resp["detail"])
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload-zip/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")

		rec, resp := do(t, s, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, msgNoFile, resp["detail"])
	})

	t.Run("wrong type", func(t *testing.T) {
		rec, resp := do(t, s, uploadRequest(t, "data.csv", "text/csv", []byte("a,b\n")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, msgInvalidFileType, resp["detail"])
	})

	require.False(t, called, "ingester must not run for rejected requests")
}

func TestUploadZip_TypeCheckAcceptsEither(t *testing.T) {
	s := newTestServer(t, Deps{Ingester: ingestFunc(func(context.Context, io.Reader) (core.IngestionResult, error) {
		return core.IngestionResult{NewsInserted: 2}, nil
	})})

	for _, tc := range []struct{ name, ct string }{
		{name: "BUNDLE.ZIP", ct: "application/octet-stream"},
		{name: "bundle", ct: "application/x-zip-compressed"},
	} {
		rec, resp := do(t, s, uploadRequest(t, tc.name, tc.ct, []byte("PK")))
		require.Equal(t, http.StatusOK, rec.Code, tc.name)
		require.Equal(t, float64(2), resp["news_inserted"])
	}
}

func TestUploadZip_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "ingestion error",
			err:        fmt.Errorf("ingest archive: %w", &core.IngestionError{Code: core.CodeNotArchive, Message: "Uploaded file is not a valid ZIP archive."}),
			wantStatus: http.StatusBadRequest,
			wantDetail: "Uploaded file is not a valid ZIP archive.",
		},
		{
			name:       "busy",
			err:        core.ErrTooManyUploads,
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: msgBusy,
		},
		{
			name:       "internal fault is masked",
			err:        errors.New("copy company_esg: connection refused to 10.0.0.5"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: msgUploadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Deps{Ingester: ingestFunc(func(context.Context, io.Reader) (core.IngestionResult, error) {
				return core.IngestionResult{}, tt.err
			})})

			rec, body := do(t, s, uploadRequest(t, "a.zip", "application/zip", []byte("PK")))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, "error", body["status"])
			require.Equal(t, tt.wantDetail, body["detail"])
			require.NotContains(t, rec.Body.String(), "10.0.0.5")
		})
	}
}

func TestUploadZip_RequiresAPIKeyWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret-key"}
	s := NewServer(cfg, Deps{Catalog: &fakeCatalog{}, Ingester: ingestFunc(func(context.Context, io.Reader) (core.IngestionResult, error) {
		return core.IngestionResult{}, nil
	})})
	defer s.Shutdown(context.Background())

	rec, _ := do(t, s, uploadRequest(t, "a.zip", "application/zip", []byte("PK")))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := uploadRequest(t, "a.zip", "application/zip", []byte("PK"))
	req.Header.Set("X-API-Key", "secret-key")
	rec, _ = do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// ---------------------------------------------------------------------------
// Read API
// ---------------------------------------------------------------------------

func TestListCompanies(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{companies: []core.CompanyScore{
		{ID: 7, Company: "Acme", SentimentScore: 0.5, EnvironmentalScore: 2, SocialScore: 4, ESGScore: 3, CreatedAt: created},
	}}
	s := newTestServer(t, Deps{Catalog: catalog})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/companies/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "Acme", got[0]["company"])
	require.Equal(t, float64(3), got[0]["esg_score"])
	require.NotContains(t, got[0], "created_at", "list view omits timestamps")
}

func TestListCompanies_Empty(t *testing.T) {
	s := newTestServer(t, Deps{Catalog: &fakeCatalog{}})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/companies/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestGetCompany(t *testing.T) {
	catalog := &fakeCatalog{companies: []core.CompanyScore{{ID: 7, Company: "Acme", ESGScore: 3}}}
	s := newTestServer(t, Deps{Catalog: catalog})

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/companies/7/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Acme", body["company"])
	require.Contains(t, body, "created_at")
	require.NotContains(t, body, "ingestion_id")

	for _, path := range []string{"/api/companies/8/", "/api/companies/abc/"} {
		rec, body = do(t, s, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		require.Equal(t, msgNotFound, body["detail"])
	}
}

func TestListNews(t *testing.T) {
	catalog := &fakeCatalog{news: []core.NewsSentiment{{ID: 1, Title: "Plant opens", SentimentScore: 0.8, SentimentLabel: "positive"}}}
	s := newTestServer(t, Deps{Catalog: catalog})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Plant opens", got[0]["title"])
	require.Equal(t, "", got[0]["summary"])
}

func TestCompanyReport(t *testing.T) {
	catalog := &fakeCatalog{reports: []core.CompanyReport{{ID: 3, Company: "TCS", Report: map[string]any{"year": 2024}}}}
	s := newTestServer(t, Deps{Catalog: catalog})

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports/tcs/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TCS", body["company"])
	require.Equal(t, map[string]any{"year": float64(2024)}, body["report"])

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports/Infosys/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, msgReportNotFound, body["detail"])
}

func TestReadAPI_InternalErrorIsMasked(t *testing.T) {
	s := newTestServer(t, Deps{Catalog: &fakeCatalog{err: errors.New("pq: password authentication failed")}})

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/news/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, msgUnexpected, body["detail"])
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

func predictRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/predict/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPredict(t *testing.T) {
	var got scoring.Features
	s := newTestServer(t, Deps{Predictor: predictFunc(func(f scoring.Features) (float64, error) {
		got = f
		return 42.5, nil
	})})

	rec, body := do(t, s, predictRequest(`{"sentiment_score": 0.5, "environmental_score": "70", "social_score": 60, "governance_score": 80}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 42.5, body["predicted_esg_score"])
	require.Equal(t, scoring.Features{0.5, 70, 60, 80}, got)
}

func TestPredict_Validation(t *testing.T) {
	s := newTestServer(t, Deps{Predictor: predictFunc(func(scoring.Features) (float64, error) {
		t.Fatal("predictor must not be called for invalid input")
		return 0, nil
	})})

	rec, body := do(t, s, predictRequest(`{"sentiment_score": "high", "social_score": true, "governance_score": 1}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []any{"A valid number is required."}, body["sentiment_score"])
	require.Equal(t, []any{"This field is required."}, body["environmental_score"])
	require.Equal(t, []any{"A valid number is required."}, body["social_score"])
	require.NotContains(t, body, "governance_score")

	rec, body = do(t, s, predictRequest(`{not json`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, msgMalformedJSON, body["detail"])
}

func TestPredict_ModelErrors(t *testing.T) {
	valid := `{"sentiment_score": 1, "environmental_score": 1, "social_score": 1, "governance_score": 1}`

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unavailable", err: fmt.Errorf("%w: missing file", scoring.ErrUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "prediction failure", err: scoring.ErrPrediction, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Deps{Predictor: predictFunc(func(scoring.Features) (float64, error) {
				return 0, tt.err
			})})

			rec, body := do(t, s, predictRequest(valid))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.NotEmpty(t, body["detail"])
		})
	}
}

// ---------------------------------------------------------------------------
// Pages, health, headers
// ---------------------------------------------------------------------------

func TestUploadPage(t *testing.T) {
	s := newTestServer(t, Deps{})

	for _, path := range []string{"/", "/api/upload-page/"} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		require.Contains(t, rec.Body.String(), `name="file"`)
		require.Contains(t, rec.Body.String(), `action="/api/upload-zip/"`)
	}
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, Deps{Health: pingFunc(func(context.Context) error { return nil })})
	rec, body := do(t, healthy, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])

	down := newTestServer(t, Deps{Health: pingFunc(func(context.Context) error { return errors.New("connection refused") })})
	rec, body = do(t, down, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "unavailable", body["status"])
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestMetricsRouteMountedWhenProvided(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "esg_ingestions_total 0\n") })
	s := newTestServer(t, Deps{Metrics: metrics})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "esg_ingestions_total")
}

func TestRateLimiter(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	rl := newRateLimiter(2, time.Minute, stop)

	require.True(t, rl.allow("1.2.3.4"))
	require.True(t, rl.allow("1.2.3.4"))
	require.False(t, rl.allow("1.2.3.4"))
	require.True(t, rl.allow("5.6.7.8"), "limits are per client")
}
