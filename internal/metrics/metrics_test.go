package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/esg/internal/core"
)

func TestRunFinished_Success(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestion(reg)

	m.RunFinished(core.OutcomeSuccess, core.IngestionResult{
		CompaniesInserted: 2,
		NewsInserted:      1,
		ReportsInserted:   1,
		Skipped: core.SkipSummary{
			CompanyRows: 2,
			Files:       map[string]int{core.SkipInvalidJSON: 1},
		},
		Duration: 150 * time.Millisecond,
	})

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.inserted.WithLabelValues("company")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.inserted.WithLabelValues("report")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.rowsSkipped.WithLabelValues("company")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.filesSkipped.WithLabelValues(core.SkipInvalidJSON)))
}

func TestRunFinished_FailureCountsOnlyOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestion(reg)

	m.RunFinished(core.OutcomeRejected, core.IngestionResult{CompaniesInserted: 5})

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rejected")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.inserted.WithLabelValues("company")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestion(reg)
	m.RunFinished(core.OutcomeBusy, core.IngestionResult{})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `esg_ingestions_total{outcome="busy"} 1`))
}
