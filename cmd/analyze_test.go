package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"cvectl/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// apiPortFor points the resolved configuration at srv.
func apiPortFor(t *testing.T, srv *httptest.Server) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	chdir(t, t.TempDir())
	t.Setenv("API_PORT", u.Port())
}

func runAnalyze(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	c := newAnalyzeCmd()
	c.SetOut(&out)
	c.SetErr(&logs)
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

func TestAnalyze_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cve_id":"CVE-2024-1234","analysis":"Upgrade to 2.4.1."}`))
	}))
	defer srv.Close()
	apiPortFor(t, srv)

	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	defer func() { copyToClipboard = orig }()

	out, err := runAnalyze(t, "cve-2024-1234", "--copy")

	require.NoError(t, err)
	assert.Contains(t, out, "Analysis of CVE-2024-1234")
	assert.Contains(t, out, "Upgrade to 2.4.1.")
	assert.Equal(t, "Upgrade to 2.4.1.", copied)
}

func TestAnalyze_ServerErrorBodyShownVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model unavailable"))
	}))
	defer srv.Close()
	apiPortFor(t, srv)

	out, err := runAnalyze(t, "CVE-2024-1234")

	require.NoError(t, err)
	assert.Contains(t, out, "HTTP 500")
	assert.Contains(t, out, "\nmodel unavailable\n")
}

func TestAnalyze_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	apiPortFor(t, srv)
	srv.Close()

	out, err := runAnalyze(t, "CVE-2024-1234")

	require.NoError(t, err)
	assert.Contains(t, out, "not reachable")
}

func TestAnalyze_InvalidID(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runAnalyze(t, "not-a-cve")

	assert.ErrorIs(t, err, analysis.ErrInvalidCVEID)
}

func TestReportAnalyzeError_OtherErrorsFail(t *testing.T) {
	err := reportAnalyzeError(nil, "http://localhost:8000", errors.New("decode failure"))

	assert.EqualError(t, err, "decode failure")
}
