package browser

import "context"

// fakeDriver and fakePage let session.go be tested without a real browser.
type fakeDriver struct {
	pages []*fakePage
}

func (d *fakeDriver) NewPage(ctx context.Context) (Page, error) {
	p := &fakePage{url: "about:blank", exists: map[string]bool{}}
	d.pages = append(d.pages, p)
	return p, nil
}

func (d *fakeDriver) Close(ctx context.Context) error { return nil }

type fakePage struct {
	url      string
	title    string
	closed   bool
	exists   map[string]bool
	contents string
}

func (p *fakePage) Goto(ctx context.Context, url string) error { p.url = url; return nil }
func (p *fakePage) URL() string                                { return p.url }
func (p *fakePage) Title(ctx context.Context) (string, error)  { return p.title, nil }
func (p *fakePage) Click(ctx context.Context, selector string) error {
	delete(p.exists, selector)
	return nil
}
func (p *fakePage) ClickAt(ctx context.Context, x, y float64) error { return nil }
func (p *fakePage) Fill(ctx context.Context, selector, text string) error { return nil }
func (p *fakePage) Press(ctx context.Context, key string) error          { return nil }
func (p *fakePage) WaitForSelector(ctx context.Context, selector string, timeoutMS int) error {
	return nil
}
func (p *fakePage) WaitForTimeout(ctx context.Context, ms int) {}
func (p *fakePage) GoBack(ctx context.Context) error            { return nil }
func (p *fakePage) GoForward(ctx context.Context) error         { return nil }
func (p *fakePage) Reload(ctx context.Context) error            { return nil }
func (p *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return []byte("fake"), nil
}
func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	if p.exists[selector] {
		return 1, nil
	}
	return 0, nil
}
func (p *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	return p.exists[selector], nil
}
func (p *fakePage) ExtractFields(ctx context.Context, selector string, fields map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k := range fields {
		out[k] = "value"
	}
	return out, nil
}
func (p *fakePage) Snapshot(ctx context.Context) (string, error) { return p.contents, nil }
func (p *fakePage) Close(ctx context.Context) error              { p.closed = true; return nil }
