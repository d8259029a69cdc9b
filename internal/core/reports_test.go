package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestReportCompany(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "TCS.json", want: "TCS"},
		{name: "reports/2024/tcs_report.JSON", want: "tcs_report"},
		{name: "Acme Corp.v2.json", want: "Acme Corp.v2"},
		{name: "noext", want: "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ReportCompany(tt.name))
		})
	}
}

func TestCollectReports(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	write("TCS.json", `{"year": 2024, "scores": [1, 2]}`)
	write("deep/Infosys.json", `[1, "two", null]`)
	write("broken.json", `{"unterminated": `)
	write("empty.json", ``)

	reports, skipped, err := CollectReports(context.Background(), root,
		[]string{"TCS.json", "broken.json", "deep/Infosys.json", "empty.json"})
	require.NoError(t, err)

	require.Len(t, reports, 2)
	require.Equal(t, "TCS", reports[0].Company)
	require.Equal(t, map[string]any{"year": json.Number("2024"), "scores": []any{json.Number("1"), json.Number("2")}}, reports[0].Report)
	require.Equal(t, "Infosys", reports[1].Company)
	require.Equal(t, []any{json.Number("1"), "two", nil}, reports[1].Report)

	require.Len(t, skipped, 2)
	require.Equal(t, "broken.json", skipped[0].FileName)
	require.Equal(t, "empty.json", skipped[1].FileName)
}

func TestCollectReports_NumbersKeepPrecision(t *testing.T) {
	root := t.TempDir()
	doc := `{"id": 12345678901234567891, "ratio": 0.1, "nested": {"big": -98765432109876543210}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "Acme.json"), []byte(doc), 0o600))

	reports, skipped, err := CollectReports(context.Background(), root, []string{"Acme.json"})
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, reports, 1)

	got, ok := reports[0].Report.(map[string]any)
	require.True(t, ok)
	require.Equal(t, json.Number("12345678901234567891"), got["id"])
	require.Equal(t, json.Number("0.1"), got["ratio"])
	require.Equal(t, map[string]any{"big": json.Number("-98765432109876543210")}, got["nested"])

	out, err := json.Marshal(reports[0].Report)
	require.NoError(t, err)
	require.Contains(t, string(out), `"id":12345678901234567891`)
}

func TestCollectReports_TrailingData(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.json"), []byte(`{"a": 1} {"b": 2}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.json"), []byte("{\"a\": 1}\n\n"), 0o600))

	reports, skipped, err := CollectReports(context.Background(), root, []string{"a.json", "b.json"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "b", reports[0].Company)
	require.Len(t, skipped, 1)
	require.Equal(t, "a.json", skipped[0].FileName)
}

func TestCollectReports_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := CollectReports(ctx, t.TempDir(), []string{"a.json"})
	require.ErrorIs(t, err, context.Canceled)
}
