package capability

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageContent = 50000

type FetchPageCapability struct {
	UserAgent string
}

func NewFetchPageCapability() *FetchPageCapability {
	return &FetchPageCapability{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	}
}

func (s *FetchPageCapability) Name() string {
	return "fetch_page"
}

func (s *FetchPageCapability) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *FetchPageCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout:    30 * time.Second,
		Idempotent: true,
		// Script-heavy pages that defeat a plain GET go through the
		// headless browser instead.
		Fallbacks: []string{"browser_fetch"},
	}
}

func (s *FetchPageCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}

	parsedURL, err := url.Parse(args.URL)
	if err != nil {
		return Result{}, Permanentf("failed to parse URL: %v", err)
	}

	client := &http.Client{}
	req, err := http.NewRequestWithContext(ctx, "GET", args.URL, nil)
	if err != nil {
		return Result{}, Permanentf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, WrapTransient(err, "failed to fetch URL")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, Transientf("failed to fetch URL: status code %d", resp.StatusCode)
	default:
		return Result{}, Permanentf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Result{}, WrapTransient(err, "failed to parse article")
	}

	return Result{
		Output: renderArticle(article.Title, article.Excerpt, article.TextContent),
		Meta:   map[string]any{"url": args.URL, "title": article.Title},
	}, nil
}

// renderArticle combines the extracted article into a structured report,
// sanitized and truncated so a single page cannot dominate a prompt.
func renderArticle(title, excerpt, text string) string {
	p := bluemonday.StrictPolicy()
	sanitized := p.Sanitize(text)

	output := fmt.Sprintf("TITLE: %s\n", title)
	if excerpt != "" {
		output += fmt.Sprintf("EXCERPT: %s\n", excerpt)
	}
	output += "\n-- CONTENT --\n"

	content := sanitized
	if len(content) > maxPageContent {
		content = content[:maxPageContent] + "\n... (content truncated) ..."
	}
	return output + content
}
