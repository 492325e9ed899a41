package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deepresearch.app/agent/core/config"
)

func newTestReader() *HTTPReader {
	return New(config.ReaderConfig{MaxContent: 20_000})
}

func TestReadExtractsTextAndTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Test Page</title>
<script>var ignored = true;</script>
<style>body { color: red; }</style></head>
<body><h1>Heading</h1><p>First paragraph of content.</p>
<p>Second   paragraph with    odd spacing.</p>
<noscript>also ignored</noscript></body></html>`))
	}))
	defer server.Close()

	result, err := newTestReader().Read(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if result.Title != "Test Page" {
		t.Errorf("title = %q, want Test Page", result.Title)
	}
	if !strings.Contains(result.Content, "First paragraph of content.") {
		t.Errorf("content missing paragraph: %q", result.Content)
	}
	if strings.Contains(result.Content, "ignored") {
		t.Errorf("script/noscript text leaked into content: %q", result.Content)
	}
	if strings.Contains(result.Content, "color: red") {
		t.Errorf("style text leaked into content: %q", result.Content)
	}
	if strings.Contains(result.Content, "   ") {
		t.Errorf("whitespace not collapsed: %q", result.Content)
	}
	if result.Tokens == 0 {
		t.Error("token estimate should be non-zero")
	}
}

func TestReadBlocksSeparatedByNewlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>alpha block</p><p>beta block</p></body></html>`))
	}))
	defer server.Close()

	result, err := newTestReader().Read(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	lines := strings.Split(result.Content, "\n")
	if len(lines) < 2 {
		t.Errorf("blocks not separated: %q", result.Content)
	}
}

func TestReadRejectsBadURLs(t *testing.T) {
	r := newTestReader()
	ctx := context.Background()

	for _, target := range []string{"", "   ", "ftp://example.com/file", "not-a-url", "mailto:x@example.com"} {
		if _, err := r.Read(ctx, target); err == nil {
			t.Errorf("Read(%q) succeeded, want error", target)
		}
	}
}

func TestReadNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := newTestReader().Read(context.Background(), server.URL); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestReadTruncatesLongContent(t *testing.T) {
	reader := New(config.ReaderConfig{MaxContent: 100})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("long content ", 100) + "</p></body></html>"))
	}))
	defer server.Close()

	result, err := reader.Read(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.HasSuffix(result.Content, "...[truncated]") {
		t.Errorf("long content not truncated: %q", result.Content[:50])
	}
}
