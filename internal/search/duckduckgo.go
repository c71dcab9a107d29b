// Package search resolves free-text queries against a web search provider.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

// ErrNoResults is returned when the provider answered but produced no snippets.
var ErrNoResults = errors.New("search returned no results")

// Searcher runs a single free-text query and returns free-text results.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DuckDuckGo queries the DuckDuckGo HTML frontend, which needs no API key.
type DuckDuckGo struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

// NewDuckDuckGo creates a searcher against endpoint (the html.duckduckgo.com form URL).
func NewDuckDuckGo(endpoint string, maxResults int) *DuckDuckGo {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &DuckDuckGo{
		endpoint:   endpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 20 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Search posts the query and joins the first result snippets with a space.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AssistantGPT/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search provider returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	snippets, err := parseSnippets(resp.Body, d.maxResults)
	if err != nil {
		return "", fmt.Errorf("failed to parse search results: %w", err)
	}
	if len(snippets) == 0 {
		return "", fmt.Errorf("%w for %q", ErrNoResults, query)
	}
	return strings.Join(snippets, " "), nil
}

func parseSnippets(r io.Reader, limit int) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var snippets []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(snippets) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			if text := strings.Join(strings.Fields(textContent(n)), " "); text != "" {
				snippets = append(snippets, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return snippets, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
