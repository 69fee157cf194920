// Package search queries a Tavily-compatible web search API.
package search

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

	"github.com/ent0n29/glassvoice/internal/reliability"
)

const DefaultBaseURL = "https://api.tavily.com"

var ErrNotConfigured = errors.New("search: api key is not configured")

// StatusError is a non-200 response from the search API.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search: API error (status %d): %s", e.StatusCode, e.Body)
}

type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

type Result struct {
	Query  string `json:"query"`
	Answer string `json:"answer,omitempty"`
	Hits   []Hit  `json:"hits"`
}

// Summary renders the result as short plain text for the voice model.
func (r Result) Summary(maxHits int) string {
	var b strings.Builder
	if a := strings.TrimSpace(r.Answer); a != "" {
		b.WriteString(a)
	}
	if maxHits <= 0 {
		maxHits = 3
	}
	for i, h := range r.Hits {
		if i >= maxHits {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s (%s)", strings.TrimSpace(h.Title), truncate(strings.TrimSpace(h.Snippet), 280), h.URL)
	}
	if b.Len() == 0 {
		return "No results found."
	}
	return b.String()
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		if strings.TrimSpace(url) != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets how many extra attempts are made on retryable statuses.
func WithRetry(attempts int, base, cap time.Duration) Option {
	return func(c *Client) {
		c.retries = attempts
		c.backoffBase = base
		c.backoffCap = cap
	}
}

type Client struct {
	apiKey      string
	baseURL     string
	http        *http.Client
	retries     int
	backoffBase time.Duration
	backoffCap  time.Duration
	maxResults  int
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     DefaultBaseURL,
		http:        &http.Client{Timeout: 15 * time.Second},
		retries:     2,
		backoffBase: 200 * time.Millisecond,
		backoffCap:  2 * time.Second,
		maxResults:  5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer,omitempty"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, errors.New("search: query is required")
	}
	body, err := json.Marshal(searchRequest{
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("search: marshal request: %w", err)
	}

	var (
		lastErr error
		hint    time.Duration
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := reliability.RetryDelay(attempt-1, hint, c.backoffBase, c.backoffCap)
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		res, err := c.do(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		var se *StatusError
		if !errors.As(err, &se) || !reliability.IsRetryableHTTPStatus(se.StatusCode) {
			return Result{}, err
		}
		hint = se.RetryAfter
	}
	return Result{}, lastErr
}

func (c *Client) do(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		se.RetryAfter, _ = reliability.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return Result{}, se
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("search: decode response: %w", err)
	}
	out := Result{Query: decoded.Query, Answer: decoded.Answer, Hits: make([]Hit, 0, len(decoded.Results))}
	for _, r := range decoded.Results {
		out.Hits = append(out.Hits, Hit{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return out, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
