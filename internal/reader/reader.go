package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"deepresearch.app/agent/core/config"
	"golang.org/x/net/html"
)

// Result is the readable content of one fetched page.
type Result struct {
	Title   string
	URL     string
	Content string
	Tokens  int
}

// Reader fetches a URL and extracts readable text. Implementations must
// reject empty and non-http(s) URLs.
type Reader interface {
	Read(ctx context.Context, target string) (*Result, error)
}

// HTTPReader is the default Reader over plain HTTP.
type HTTPReader struct {
	httpClient *http.Client
	maxContent int
}

func New(cfg config.ReaderConfig) *HTTPReader {
	return &HTTPReader{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxContent: cfg.MaxContent,
	}
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func (r *HTTPReader) Read(ctx context.Context, target string) (*Result, error) {
	if err := validateURL(target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; DeepResearchBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", target, err)
	}

	title, content := extractReadable(string(body))
	if r.maxContent > 0 && len(content) > r.maxContent {
		content = content[:r.maxContent] + "\n...[truncated]"
	}

	slog.DebugContext(ctx, "url read",
		"url", target,
		"title", title,
		"content_length", len(content),
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{
		Title:   title,
		URL:     target,
		Content: content,
		Tokens:  len(content) / 4,
	}, nil
}

func validateURL(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL %q has no host", target)
	}
	return nil
}

// extractReadable parses HTML and returns the document title and visible
// text. Blocks are separated by newlines so downstream chunking has natural
// boundaries; inline whitespace is collapsed.
func extractReadable(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// Fallback: strip tags with a blunt regex
		stripped := regexp.MustCompile(`<[^>]*>`).ReplaceAllString(raw, " ")
		return "", collapseWhitespace(stripped)
	}

	var title string
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "title":
				if title == "" {
					title = collapseWhitespace(nodeText(n))
				}
				return
			case "p", "div", "section", "article", "li", "tr",
				"h1", "h2", "h3", "h4", "h5", "h6", "br", "pre", "blockquote":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if collapsed := collapseWhitespace(line); collapsed != "" {
			lines = append(lines, collapsed)
		}
	}
	return title, strings.Join(lines, "\n")
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
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
	return sb.String()
}
