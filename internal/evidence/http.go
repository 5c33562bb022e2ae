package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// HTTPConfig describes a JSON search API. Paths use gjson syntax and are
// evaluated against each element of ResultsPath.
type HTTPConfig struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string // default "X-API-Key"
	QueryParam   string // default "q"
	CountParam   string // default "count"

	ResultsPath   string // default "results"
	TitlePath     string // default "title"
	URLPath       string // default "url"
	AuthorPath    string // default "author"
	PublishedPath string // default "published_date"

	Timeout time.Duration
}

func (c *HTTPConfig) applyDefaults() {
	def := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	def(&c.APIKeyHeader, "X-API-Key")
	def(&c.QueryParam, "q")
	def(&c.CountParam, "count")
	def(&c.ResultsPath, "results")
	def(&c.TitlePath, "title")
	def(&c.URLPath, "url")
	def(&c.AuthorPath, "author")
	def(&c.PublishedPath, "published_date")
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
}

// HTTPRetriever queries a JSON search API over HTTP.
type HTTPRetriever struct {
	cfg  HTTPConfig
	http *http.Client
}

// NewHTTPRetriever returns a retriever for cfg. An empty endpoint is
// allowed; every search then fails with ErrNotConfigured.
func NewHTTPRetriever(cfg HTTPConfig) *HTTPRetriever {
	cfg.applyDefaults()
	return &HTTPRetriever{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *HTTPRetriever) Name() string { return "http" }

func (r *HTTPRetriever) Configured() bool {
	return strings.TrimSpace(r.cfg.Endpoint) != ""
}

func (r *HTTPRetriever) Search(ctx context.Context, query string, k int) ([]domain.Source, error) {
	if !r.Configured() {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint: %v", ErrNotConfigured, err)
	}
	q := u.Query()
	q.Set(r.cfg.QueryParam, query)
	if k > 0 {
		q.Set(r.cfg.CountParam, strconv.Itoa(k))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set(r.cfg.APIKeyHeader, r.cfg.APIKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: search provider rejected credentials (%s)", ErrNotConfigured, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		const max = 512
		if len(body) > max {
			body = body[:max]
		}
		return nil, fmt.Errorf("search provider returned %s: %s", resp.Status, string(body))
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("search provider returned invalid json")
	}
	return limit(r.parse(body), k), nil
}

func (r *HTTPRetriever) parse(body []byte) []domain.Source {
	var out []domain.Source
	gjson.GetBytes(body, r.cfg.ResultsPath).ForEach(func(_, item gjson.Result) bool {
		link := strings.TrimSpace(item.Get(r.cfg.URLPath).String())
		if link == "" {
			return true
		}
		src := domain.Source{
			Title:  strings.TrimSpace(item.Get(r.cfg.TitlePath).String()),
			URL:    link,
			Author: strings.TrimSpace(item.Get(r.cfg.AuthorPath).String()),
		}
		if src.Title == "" {
			src.Title = link
		}
		if t, ok := parseDate(item.Get(r.cfg.PublishedPath).String()); ok {
			src.PublishedAt = &t
		}
		out = append(out, src)
		return true
	})
	return out
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
