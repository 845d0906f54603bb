package mediaindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no media server is configured
var ErrNotConfigured = errors.New("media index not configured")

// Client is an Emby-compatible media server search client
type Client struct {
	baseURL    string
	apiKey     string
	limit      int
	httpClient *http.Client
}

// Config for media index client
type Config struct {
	BaseURL string // e.g., http://emby.local:8096/emby
	APIKey  string
	Limit   int // max results per search
}

// Item is a single search hit
type Item struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	ProductionYear int    `json:"ProductionYear"`
	Overview       string `json:"Overview"`
}

// Title returns "Name (Year)" when the year is known
func (i Item) Title() string {
	if i.ProductionYear == 0 {
		return i.Name
	}
	return fmt.Sprintf("%s (%d)", i.Name, i.ProductionYear)
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// NewClient creates a new media index client
func NewClient(cfg Config) *Client {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limit:   limit,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured returns true if the media index integration is configured
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// Search finds movies and series matching query
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("SearchTerm", query)
	params.Set("Recursive", "true")
	params.Set("IncludeItemTypes", "Movie,Series")
	params.Set("Fields", "ProductionYear,Overview")
	params.Set("Limit", fmt.Sprint(c.limit))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Items?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s (status %d)", strings.TrimSpace(string(respBody)), resp.StatusCode)
	}

	var items itemsResponse
	if err := json.Unmarshal(respBody, &items); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return items.Items, nil
}
