package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// WebSearchOptions configures the web search tool.
type WebSearchOptions struct {
	// BaseURL of a DuckDuckGo-compatible instant answer endpoint.
	BaseURL string
	// MaxResults caps the returned result list when the caller does not
	// supply max_results. Default 5.
	MaxResults int
	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// WebSearchTool performs web searches against a DuckDuckGo-compatible HTTP
// API.
type WebSearchTool struct {
	opts WebSearchOptions
}

// NewWebSearchTool constructs a web search tool.
func NewWebSearchTool(optFns ...func(o *WebSearchOptions)) *WebSearchTool {
	opts := WebSearchOptions{
		BaseURL:    "https://api.duckduckgo.com/",
		MaxResults: 5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &WebSearchTool{opts: opts}
}

// Name implements Tool.
func (t *WebSearchTool) Name() string { return "web_search" }

// Description implements Tool.
func (t *WebSearchTool) Description() string {
	return "Perform a web search to find information on the internet"
}

// Parameters implements Tool.
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return",
			},
		},
		"required": []string{"query"},
	}
}

// Privileged implements Tool.
func (t *WebSearchTool) Privileged() bool { return false }

// searchResponse mirrors the subset of the DuckDuckGo instant answer payload
// the tool reports.
type searchResponse struct {
	Heading       string        `json:"Heading"`
	AbstractText  string        `json:"AbstractText"`
	AbstractURL   string        `json:"AbstractURL"`
	RelatedTopics []searchTopic `json:"RelatedTopics"`
}

// searchTopic is either a direct result or a named group of nested topics.
type searchTopic struct {
	Text     string        `json:"Text"`
	FirstURL string        `json:"FirstURL"`
	Topics   []searchTopic `json:"Topics"`
}

// Call implements Tool.
func (t *WebSearchTool) Call(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	max := t.opts.MaxResults
	if n, ok := args["max_results"].(float64); ok && n > 0 {
		max = int(n)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("no_redirect", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := collectResults(payload.RelatedTopics, max)

	return map[string]any{
		"query":    query,
		"heading":  payload.Heading,
		"abstract": payload.AbstractText,
		"url":      payload.AbstractURL,
		"results":  results,
	}, nil
}

// collectResults flattens topic groups into a bounded list of title/url
// pairs.
func collectResults(topics []searchTopic, max int) []map[string]any {
	results := make([]map[string]any, 0, max)
	var walk func(ts []searchTopic)
	walk = func(ts []searchTopic) {
		for _, topic := range ts {
			if len(results) >= max {
				return
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
				continue
			}
			if topic.Text == "" {
				continue
			}
			results = append(results, map[string]any{
				"title": topic.Text,
				"url":   topic.FirstURL,
			})
		}
	}
	walk(topics)
	return results
}
