package covers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchFixture = `{
	"numFound": 2,
	"docs": [
		{
			"key": "/works/OL185363W",
			"title": "The Left Hand of Darkness",
			"author_name": ["Ursula K. Le Guin"],
			"first_publish_year": 1969,
			"cover_i": 11681548,
			"cover_edition_key": "OL7906837M"
		},
		{
			"key": "/works/OL27258W",
			"title": "Left Hand",
			"author_name": []
		}
	]
}`

func TestClientSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, 100, 10, nil)
	results, err := c.Search(context.Background(), "left hand of darkness", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "left hand of darkness", gotQuery)
	first := results[0]
	assert.Equal(t, "OL185363W", first.WorkKey, "the /works/ prefix is stripped")
	assert.Equal(t, "Ursula K. Le Guin", first.Author)
	assert.Equal(t, 1969, first.FirstYear)
	assert.Equal(t, int64(11681548), first.CoverID)

	assert.Empty(t, results[1].Author, "missing author list is tolerated")
}

func TestClientSearchEmptyQuery(t *testing.T) {
	c := NewClient("http://localhost", nil, 100, 10, nil)
	_, err := c.Search(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestClientSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, 100, 10, nil)
	_, err := c.Search(context.Background(), "dune", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClientSearchRespectsCancelledContext(t *testing.T) {
	// Zero rate: the limiter can never grant a token, so the wait must end
	// with the context error instead of blocking forever.
	c := NewClient("http://localhost", nil, 0, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Search(ctx, "dune", 5)
	assert.ErrorIs(t, err, context.Canceled)
}
