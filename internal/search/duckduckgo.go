package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deepresearch.app/agent/internal/model"
	"golang.org/x/net/html"
)

const duckduckgoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML endpoint; no API key required.
type DuckDuckGo struct {
	httpClient *http.Client
}

func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *DuckDuckGo) Name() string {
	return "duckduckgo"
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, duckduckgoURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; DeepResearchBot/1.0)")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search error %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo response: %w", err)
	}

	return parseResults(doc), nil
}

// parseResults walks the result list: titles come from a.result__a anchors,
// snippets from .result__snippet nodes.
func parseResults(doc *html.Node) []model.SearchResult {
	var results []model.SearchResult
	var current *model.SearchResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil {
					results = append(results, *current)
				}
				current = &model.SearchResult{
					Title: nodeText(n),
					URL:   cleanResultURL(attr(n, "href")),
				}
			case hasClass(n, "result__snippet") && current != nil:
				current.Description = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if current != nil {
		results = append(results, *current)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.URL != "" && r.Title != "" {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func cleanResultURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(parsed.Host, "duckduckgo.com") {
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return raw
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
