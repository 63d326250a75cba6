package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ophtha-dss/internal/consultation"
	"ophtha-dss/internal/decisiontree"
	"ophtha-dss/internal/recommendation"
)

func TestTreeCommand(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	path := filepath.Join(t.TempDir(), "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
text: Eye pain?
yes:
  text: Iritis
no:
  text: Red eye?
  yes:
    text: Conjunctivitis
  no:
    text: Cataract
`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"tree", "--path", path})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "3 diagnoses")
	assert.Contains(t, lines[1], "/yes")
	assert.Contains(t, lines[1], "Iritis")
	assert.Contains(t, lines[3], "Cataract")
}

func TestTreeCommand_InvalidFile(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"text": ""}`), 0o644))

	rootCmd.SetArgs([]string{"tree", "--path", path})
	assert.Error(t, rootCmd.Execute())
}

func TestMigrateCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "")

	rootCmd.SetArgs([]string{"migrate", "up"})
	assert.ErrorContains(t, rootCmd.Execute(), "DATABASE_URL")

	rootCmd.SetArgs([]string{"migrate", "sideways"})
	assert.Error(t, rootCmd.Execute())
}

func TestRouter(t *testing.T) {
	svc := consultation.NewService(consultation.NewMemoryRepository(), decisiontree.Fallback(),
		recommendation.Default(), consultation.WithLogger(zerolog.Nop()))
	r := newRouter(consultation.NewHandler(svc), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/consultations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"diagnosis"`)
}
