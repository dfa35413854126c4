package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/covers"
)

func newCoversServer(t *testing.T, upstream http.HandlerFunc) *httptest.Server {
	t.Helper()

	backend := httptest.NewServer(upstream)
	t.Cleanup(backend.Close)

	client := covers.NewClient(backend.URL, nil, 100, 10, nil)
	downloader := covers.NewDownloader(backend.URL, t.TempDir(), nil, 100, 10, nil)

	srv := httptest.NewServer(NewCoversHandler(client, downloader, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestCoversSearchRequiresQuery(t *testing.T) {
	srv := newCoversServer(t, func(w http.ResponseWriter, r *http.Request) {})

	resp, err := http.Get(srv.URL + "/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCoversSearchProxiesResults(t *testing.T) {
	srv := newCoversServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"numFound":1,"docs":[{"key":"/works/OL1W","title":"Dune","author_name":["Frank Herbert"],"cover_i":99}]}`))
	})

	resp, err := http.Get(srv.URL + "/search?q=dune")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Dune")
	assert.Contains(t, string(body), "OL1W")
}

func TestCoversSearchUpstreamFailure(t *testing.T) {
	srv := newCoversServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	resp, err := http.Get(srv.URL + "/search?q=dune")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCoversImage(t *testing.T) {
	srv := newCoversServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	})

	resp, err := http.Get(srv.URL + "/99/image?size=L")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(body))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age")
}

func TestCoversImageValidation(t *testing.T) {
	srv := newCoversServer(t, func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/0/image", "/notanumber/image", "/99/image?size=XL"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}
