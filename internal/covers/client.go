// Package covers looks up book metadata and cover images on Open Library.
// All outbound requests share a rate limiter so the public API is not
// hammered by bursty UI interactions.
package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// Result is one match from a cover search.
type Result struct {
	WorkKey    string `json:"work_key"`
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	FirstYear  int    `json:"first_year,omitempty"`
	CoverID    int64  `json:"cover_id,omitempty"`
	EditionKey string `json:"edition_key,omitempty"`
}

// Client searches Open Library for works and their cover identifiers.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a search client. rps and burst bound the request rate
// shared by all searches.
func NewClient(baseURL string, httpClient *http.Client, rps float64, burst int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With(slog.String("component", "covers.client")),
	}
}

// searchResponse mirrors the fields of Open Library's /search.json we use.
type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Key              string   `json:"key"`
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		FirstPublishYear int      `json:"first_publish_year"`
		CoverI           int64    `json:"cover_i"`
		CoverEditionKey  string   `json:"cover_edition_key"`
	} `json:"docs"`
}

// Search queries Open Library and returns at most limit results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s/search.json?q=%s&limit=%s&fields=%s",
		c.baseURL,
		url.QueryEscape(query),
		strconv.Itoa(limit),
		url.QueryEscape("key,title,author_name,first_publish_year,cover_i,cover_edition_key"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search open library: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open library returned %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(sr.Docs))
	for _, doc := range sr.Docs {
		r := Result{
			WorkKey:    strings.TrimPrefix(doc.Key, "/works/"),
			Title:      doc.Title,
			FirstYear:  doc.FirstPublishYear,
			CoverID:    doc.CoverI,
			EditionKey: doc.CoverEditionKey,
		}
		if len(doc.AuthorName) > 0 {
			r.Author = doc.AuthorName[0]
		}
		results = append(results, r)
	}

	c.logger.DebugContext(ctx, "search completed",
		slog.String("query", query),
		slog.Int("results", len(results)))
	return results, nil
}
