package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserFetcher renders pages in headless Chromium for catalogs that fill
// in prices with JavaScript. The browser is launched on first use.
type BrowserFetcher struct {
	Headless bool
	Timeout  time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserFetcher(headless bool, timeout time.Duration) *BrowserFetcher {
	return &BrowserFetcher{Headless: headless, Timeout: timeout}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	b, err := f.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("%w: open page: %w", ErrFetch, err)
	}
	defer func() { _ = page.Close() }()

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	page = page.Context(ctx)

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %w", ErrFetch, pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrFetch, pageURL, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFetch, pageURL, err)
	}
	return []byte(html), nil
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	u, err := launcher.New().Headless(f.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %w", ErrFetch, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect browser: %w", ErrFetch, err)
	}
	f.browser = b
	return b, nil
}

// Close shuts the browser down if it was started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
