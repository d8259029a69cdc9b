package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPredictCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"intercept":1,"coefficients":[1,2,3,4]}`), 0o600))

	out, err := execute(t, "predict", "--model", path,
		"--sentiment", "1", "--environmental", "1", "--social", "1", "--governance", "1")
	require.NoError(t, err)

	var got predictOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, path, got.Model)
	require.InDelta(t, 11.0, got.PredictedESGScore, 1e-9)
}

func TestPredictCmd_MissingModel(t *testing.T) {
	_, err := execute(t, "predict", "--model", filepath.Join(t.TempDir(), "absent.json"),
		"--sentiment", "1", "--environmental", "1", "--social", "1", "--governance", "1")
	require.Error(t, err)
}

func TestPredictCmd_RequiresFeatures(t *testing.T) {
	_, err := execute(t, "predict", "--sentiment", "1")
	require.Error(t, err)
}

func TestResetCmd_RequiresConfirmation(t *testing.T) {
	_, err := execute(t, "reset")
	require.ErrorIs(t, err, errResetNotConfirmed)
}

func TestIngestCmd_RequiresArchive(t *testing.T) {
	_, err := execute(t, "ingest")
	require.Error(t, err)
}
