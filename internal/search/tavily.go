// Package search provides a Tavily web-search client used by the graph nodes
// to repair incomplete paper metadata and to answer questions that need
// information beyond the local knowledge base. The client talks to the REST
// API directly — no SDK dependency is required.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// defaultBaseURL is the Tavily API endpoint.
const defaultBaseURL = "https://api.tavily.com"

// Result is a single web search hit.
type Result struct {
	// URL is the source page address.
	URL string `json:"url"`
	// Content is the extracted snippet for the page.
	Content string `json:"content"`
}

// Searcher is the interface graph nodes consume; Client is the production
// implementation and tests substitute stubs.
type Searcher interface {
	// Search returns ranked results for the query.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Config holds the settings for constructing a Client.
type Config struct {
	// APIKey is the Tavily API key.
	APIKey string
	// BaseURL overrides the API endpoint (used in tests).
	BaseURL string
	// Depth selects crawl depth: "basic" or "advanced". Advanced digs into
	// page content, which matters when hunting for publication years.
	// Defaults to "advanced".
	Depth string
	// MaxResults caps the number of hits per query. Defaults to 3.
	MaxResults int
	// RequestsPerSecond rate-limits outgoing queries (0 = 1 rps). This is a
	// transport courtesy toward the API, invisible to graph semantics.
	RequestsPerSecond float64
}

// Client is a rate-limited Tavily REST client, safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	depth      string
	maxResults int
	limiter    *rate.Limiter
	client     *http.Client
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search: TAVILY_API_KEY is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	depth := cfg.Depth
	if depth == "" {
		depth = "advanced"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		depth:      depth,
		maxResults: maxResults,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// tavilyRequest is the JSON body sent to the /search endpoint.
type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

// tavilyResponse is the JSON body returned from the /search endpoint.
type tavilyResponse struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Search returns up to MaxResults hits for the query, ranked by relevance.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search: rate limiter: %w", err)
	}

	body := tavilyRequest{
		Query:       query,
		SearchDepth: c.depth,
		MaxResults:  c.maxResults,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("search: %s", msg)
	}

	return result.Results, nil
}

// FormatResults renders results as labeled source/content blocks suitable for
// injection into a model prompt.
func FormatResults(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", r.URL, r.Content))
	}
	return strings.Join(blocks, "\n---\n")
}
