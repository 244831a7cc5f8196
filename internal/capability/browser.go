package capability

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// BrowserFetchCapability fetches pages through a headless browser, for
// sites that render their content with JavaScript. Registered as the
// fallback of fetch_page.
type BrowserFetchCapability struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserFetchCapability() *BrowserFetchCapability {
	return &BrowserFetchCapability{}
}

func (b *BrowserFetchCapability) Name() string {
	return "browser_fetch"
}

func (b *BrowserFetchCapability) Description() string {
	return "Fetch a webpage with a headless browser and extract its main content."
}

func (b *BrowserFetchCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout:    60 * time.Second,
		Idempotent: true,
	}
}

func (b *BrowserFetchCapability) initBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserFetchCapability) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the shared browser down. Called on process exit.
func (b *BrowserFetchCapability) Close() {
	b.mu.Lock()
	b.cleanup()
	b.mu.Unlock()
}

func (b *BrowserFetchCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
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

	if err := b.initBrowser(); err != nil {
		return Result{}, WrapTransient(err, "failed to initialize browser")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(60 * time.Second)
	}
	actionCtx, cancel := context.WithDeadline(b.browserCtx, deadline)
	defer cancel()

	var html string
	err = chromedp.Run(actionCtx,
		chromedp.Navigate(args.URL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Result{}, WrapTransient(err, "browser fetch failed")
	}

	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return Result{}, WrapTransient(err, "failed to parse article")
	}

	return Result{
		Output: renderArticle(article.Title, article.Excerpt, article.TextContent),
		Meta:   map[string]any{"url": args.URL, "title": article.Title},
	}, nil
}
