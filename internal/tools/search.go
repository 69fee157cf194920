package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ent0n29/glassvoice/internal/search"
)

type Searcher interface {
	Configured() bool
	Search(ctx context.Context, query string) (search.Result, error)
}

type SearchInternet struct {
	searcher Searcher
}

func NewSearchInternet(s Searcher) *SearchInternet {
	return &SearchInternet{searcher: s}
}

func (t *SearchInternet) Name() string { return "search_internet" }

func (t *SearchInternet) Description() string {
	return "Search the web for current information such as news, weather, opening hours or facts you are unsure about."
}

func (t *SearchInternet) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`)
}

func (t *SearchInternet) Active() bool {
	return t.searcher != nil && t.searcher.Configured()
}

type searchArgs struct {
	Query string `json:"query"`
}

func (t *SearchInternet) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	if !t.Active() {
		return "", NewToolError(CodeNotConfigured, "search_internet is not configured")
	}
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", NewToolError(CodeValidationFailed, "query is required")
	}
	res, err := t.searcher.Search(ctx, query)
	if err != nil {
		if errors.Is(err, search.ErrNotConfigured) {
			return "", NewToolError(CodeNotConfigured, "search_internet is not configured")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", NewToolError(CodeUpstreamError, "search failed").WithDetail("error", err.Error())
	}
	return okJSON(map[string]any{"query": query, "summary": res.Summary(3)}), nil
}
