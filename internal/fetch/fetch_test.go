package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "carml-test", r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "text,label\nbrake pad,1\n")
	}))
	defer srv.Close()

	c := New(WithUserAgent("carml-test"))

	rc, err := c.Fetch(context.Background(), srv.URL+"/components.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "text,label\nbrake pad,1\n", string(data))

	_, err = c.Fetch(context.Background(), srv.URL+"/missing.csv")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetch_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glove.txt")
	require.NoError(t, os.WriteFile(path, []byte("car 0.1 0.2\n"), 0o644))

	c := New()
	for _, u := range []string{path, "file://" + filepath.ToSlash(path)} {
		rc, err := c.Fetch(context.Background(), u)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "car 0.1 0.2\n", string(data))
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := New().Fetch(context.Background(), "ftp://example.com/glove.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetch_RateLimit(t *testing.T) {
	payload := strings.Repeat("x", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	c := New(WithRateLimit(100))

	start := time.Now()
	rc, err := c.Fetch(context.Background(), srv.URL+"/big.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, payload, string(data))
	// The first 100 bytes are covered by the burst.
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "glove.6B.100d.txt", BaseName("https://example.blob.core.windows.net/quickstarts/glove.6B.100d.txt"))
	assert.Equal(t, "components.csv", BaseName("/tmp/data/components.csv"))
	assert.Equal(t, "components.csv", BaseName("file:///tmp/data/components.csv"))
}
