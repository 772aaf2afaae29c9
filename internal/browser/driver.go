// Package browser implements the Browser Session: a shared, long-lived
// multi-tab facade over a Playwright browser, grounded on
// github.com/playwright-community/playwright-go — the browser-automation
// library this lineage's crawler sibling (uzzalhcse-CrawlPilot, in the
// retrieval pack's other_examples/ manifests) already depends on.
package browser

import "context"

// Page abstracts one browser tab. The production implementation wraps a
// playwright.Page; tests use a fake that never touches a real browser.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	Title(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string) error
	WaitForSelector(ctx context.Context, selector string, timeoutMS int) error
	WaitForTimeout(ctx context.Context, ms int)
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Count(ctx context.Context, selector string) (int, error)
	Exists(ctx context.Context, selector string) (bool, error)
	ExtractFields(ctx context.Context, selector string, fields map[string]string) (map[string]any, error)
	Snapshot(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Driver creates and tears down Pages backed by a single shared browser
// instance, one per workflow session.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
