package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memgraph-agent/server/internal/agent/model"
)

const DefaultTavilyBaseURL = "https://api.tavily.com"

// TavilyClient calls the Tavily search API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

func NewTavilyClient(cfg model.WebSearchConfig) *TavilyClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTavilyBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &TavilyClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns the results as "title (url)" headed paragraphs.
func (c *TavilyClient) Search(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("TAVILY_API_KEY is not set")
	}

	body, err := json.Marshal(tavilyRequest{Query: query, SearchDepth: "advanced", MaxResults: c.maxResults})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tavily search failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	parts := make([]string, 0, len(out.Results)+1)
	if out.Answer != "" {
		parts = append(parts, out.Answer)
	}
	for _, r := range out.Results {
		parts = append(parts, fmt.Sprintf("%s (%s)\n%s", r.Title, r.URL, r.Content))
	}
	if len(parts) == 0 {
		return "No results found.", nil
	}
	return strings.Join(parts, "\n\n"), nil
}
