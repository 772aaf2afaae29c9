package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver backs Driver with a real Chromium instance.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	headless bool
}

// NewPlaywrightDriver launches Playwright and a Chromium browser.
func NewPlaywrightDriver(headless bool) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &PlaywrightDriver{pw: pw, browser: browser, headless: headless}, nil
}

func (d *PlaywrightDriver) NewPage(ctx context.Context) (Page, error) {
	page, err := d.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (d *PlaywrightDriver) Close(ctx context.Context) error {
	if err := d.browser.Close(); err != nil {
		return err
	}
	return d.pw.Stop()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	return p.page.Locator(selector).Click()
}

func (p *playwrightPage) ClickAt(ctx context.Context, x, y float64) error {
	return p.page.Mouse().Click(x, y)
}

func (p *playwrightPage) Fill(ctx context.Context, selector, text string) error {
	return p.page.Locator(selector).Fill(text)
}

func (p *playwrightPage) Press(ctx context.Context, key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector string, timeoutMS int) error {
	_, err := p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(float64(timeoutMS)),
	})
	return err
}

func (p *playwrightPage) WaitForTimeout(ctx context.Context, ms int) {
	p.page.WaitForTimeout(float64(ms))
}

func (p *playwrightPage) GoBack(ctx context.Context) error {
	_, err := p.page.GoBack()
	return err
}

func (p *playwrightPage) GoForward(ctx context.Context) error {
	_, err := p.page.GoForward()
	return err
}

func (p *playwrightPage) Reload(ctx context.Context) error {
	_, err := p.page.Reload()
	return err
}

func (p *playwrightPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
}

func (p *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Exists(ctx context.Context, selector string) (bool, error) {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExtractFields returns one map keyed by the requested field names. Each
// field's value is the trimmed text content of the first element matching
// selector joined (as a descendant selector) with that field's
// sub-selector, or nil when nothing matches. Attributes are not read.
func (p *playwrightPage) ExtractFields(ctx context.Context, selector string, fields map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for field, fieldSelector := range fields {
		loc := p.page.Locator(joinSelector(selector, fieldSelector))
		count, err := loc.Count()
		if err != nil {
			return nil, fmt.Errorf("count %q: %w", field, err)
		}
		if count == 0 {
			out[field] = nil
			continue
		}
		text, err := loc.First().TextContent()
		if err != nil {
			return nil, fmt.Errorf("extract %q: %w", field, err)
		}
		out[field] = strings.TrimSpace(text)
	}
	return out, nil
}

func joinSelector(base, sub string) string {
	if base == "" {
		return sub
	}
	if sub == "" {
		return base
	}
	return base + " " + sub
}

func (p *playwrightPage) Snapshot(ctx context.Context) (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Close(ctx context.Context) error {
	return p.page.Close()
}
