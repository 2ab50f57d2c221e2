package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `http:
  rate_limit_rps: 0
  timeout: 5s
logging:
  development: false
  level: error
resolver:
  max_attempts: 1
` + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newMirror(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/files/"):
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4\n<< /Title (" + strings.TrimSuffix(filepath.Base(r.URL.Path), ".pdf") + ") >>"))
		case strings.HasPrefix(r.URL.Path, "/10.1000/"):
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<iframe id="pdf" src="/files/` + filepath.Base(r.URL.Path) + `.pdf"></iframe>`))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>no such article</body></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSingle(t *testing.T) {
	t.Parallel()

	srv := newMirror(t)
	out := t.TempDir()
	stdout, err := execute(t, "--config", writeConfig(t, ""), "fetch", "--mirror", srv.URL, "--out", out, "10.1000/alpha")
	require.NoError(t, err)

	want := filepath.Join(out, "alpha.pdf")
	assert.Equal(t, want, strings.TrimSpace(stdout))
	// #nosec G304 -- test reads from its own temp directory.
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4")))
}

func TestFetchWithName(t *testing.T) {
	t.Parallel()

	srv := newMirror(t)
	out := t.TempDir()
	stdout, err := execute(t, "--config", writeConfig(t, ""), "fetch",
		"--mirror", srv.URL, "--out", out, "--name", "custom.pdf", "10.1000/alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "custom.pdf"), strings.TrimSpace(stdout))
}

func TestFetchNotFound(t *testing.T) {
	t.Parallel()

	srv := newMirror(t)
	_, err := execute(t, "--config", writeConfig(t, ""), "fetch", "--mirror", srv.URL, "--out", t.TempDir(), "12345")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchBatch(t *testing.T) {
	t.Parallel()

	srv := newMirror(t)
	out := t.TempDir()
	stdout, err := execute(t, "--config", writeConfig(t, ""), "fetch",
		"--mirror", srv.URL, "--out", out, "--workers", "2", "10.1000/one", "10.1000/two")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "one.pdf"),
		filepath.Join(out, "two.pdf"),
	}, strings.Fields(stdout))
}

func TestFetchBatchReportsMissing(t *testing.T) {
	t.Parallel()

	srv := newMirror(t)
	out := t.TempDir()
	stdout, err := execute(t, "--config", writeConfig(t, ""), "fetch",
		"--mirror", srv.URL, "--out", out, "10.1000/one", "999")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, stdout, filepath.Join(out, "one.pdf"))
}

func TestFetchNameWithManyIdentifiers(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", writeConfig(t, ""), "fetch", "--name", "x.pdf", "1", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")
}

func TestFetchRequiresIdentifier(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", writeConfig(t, ""), "fetch")
	require.Error(t, err)
}

func TestMirrorsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "  mirrors:\n    - https://sci-hub.se\n    - https://sci-hub.st\n")
	stdout, err := execute(t, "--config", cfg, "mirrors")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://sci-hub.se", "https://sci-hub.st"}, strings.Fields(stdout))
}

func TestMirrorsDiscovered(t *testing.T) {
	t.Parallel()

	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<a href="https://sci-hub.ru">ru</a><a href="https://sci-hub.se">se</a>`))
	}))
	t.Cleanup(aggregator.Close)

	stdout, err := execute(t, "--config", writeConfig(t, ""), "mirrors", "--aggregator", aggregator.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://sci-hub.ru", "https://sci-hub.se"}, strings.Fields(stdout))
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "mirrors")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
