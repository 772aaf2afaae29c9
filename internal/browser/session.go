package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

// MainTabName is the name of the always-present primary tab.
const MainTabName = "mainPage"

// EventPublisher is the minimal seam Session needs into the event bus
// (internal/observability), kept as a narrow interface here so this
// package doesn't depend on observability's Redis/SSE wiring.
type EventPublisher interface {
	Publish(ctx context.Context, workflowID, eventType string, payload any) error
}

// Session is the shared, long-lived multi-tab browser facade described
// in spec.md §4.5. One Session exists per workflow for its lifetime.
type Session struct {
	mu sync.Mutex

	workflowID    string
	driver        Driver
	backend       store.Backend
	events        EventPublisher
	generator     ai.TextGenerator
	defaultWaitMS int

	tabs          map[string]Page
	activeTabName string
}

// New creates a Session and opens its mainPage tab.
func New(ctx context.Context, workflowID string, driver Driver, backend store.Backend, events EventPublisher, generator ai.TextGenerator) (*Session, error) {
	main, err := driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open main tab: %w", err)
	}
	s := &Session{
		workflowID:    workflowID,
		driver:        driver,
		backend:       backend,
		events:        events,
		generator:     generator,
		defaultWaitMS: 30000,
		tabs:          map[string]Page{MainTabName: main},
		activeTabName: MainTabName,
	}
	s.emitState(ctx)
	return s, nil
}

func (s *Session) resolveTab(tabName string) (Page, string, error) {
	if tabName == "" {
		tabName = s.activeTabName
	}
	page, ok := s.tabs[tabName]
	if !ok {
		return nil, "", ErrSelectorFailed(fmt.Sprintf("unknown tab: %s", tabName))
	}
	return page, tabName, nil
}

// Navigate loads url in the named tab (or the active tab). When
// validateLanding is true it additionally confirms the URL actually
// changed.
func (s *Session) Navigate(ctx context.Context, url, tabName string, validateLanding bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return err
	}
	before := page.URL()
	if err := page.Goto(ctx, url); err != nil {
		return ErrNavigationFailed(err.Error())
	}
	if validateLanding && page.URL() == before {
		return ErrNavigationFailed("URL did not change after navigate")
	}
	s.emitState(ctx)
	return nil
}

// Click performs a deterministic click. When validateProgress is true,
// the click must either make selector vanish or change the tab's URL.
func (s *Session) Click(ctx context.Context, selector, tabName string, validateProgress bool) error {
	return s.clickOrType(ctx, tabName, validateProgress, func(page Page) error {
		return page.Click(ctx, selector)
	}, selector)
}

// Type fills selector with text, with the same optional progress check as Click.
func (s *Session) Type(ctx context.Context, selector, text, tabName string, validateProgress bool) error {
	return s.clickOrType(ctx, tabName, validateProgress, func(page Page) error {
		return page.Fill(ctx, selector, text)
	}, selector)
}

func (s *Session) clickOrType(ctx context.Context, tabName string, validateProgress bool, op func(Page) error, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return err
	}
	beforeURL := page.URL()
	if err := op(page); err != nil {
		return ErrSelectorFailed(err.Error())
	}
	if validateProgress && selector != "" {
		stillThere, err := page.Exists(ctx, selector)
		if err == nil && stillThere && page.URL() == beforeURL {
			return ErrNavigationFailed(fmt.Sprintf("selector %q still present and URL unchanged after action", selector))
		}
	}
	s.emitState(ctx)
	return nil
}

// ClickAt performs a deterministic click at fixed page coordinates, the
// coordinate-based alternative to selector-based Click.
func (s *Session) ClickAt(ctx context.Context, x, y float64, tabName string, validateProgress bool) error {
	return s.clickOrType(ctx, tabName, validateProgress, func(page Page) error {
		return page.ClickAt(ctx, x, y)
	}, "")
}

// Keypress sends a single key to the named/active tab.
func (s *Session) Keypress(ctx context.Context, key, tabName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return err
	}
	if err := page.Press(ctx, key); err != nil {
		return ErrSelectorFailed(err.Error())
	}
	s.emitState(ctx)
	return nil
}

// Wait blocks until selector appears (or, if selector is empty, for ms
// milliseconds), capped at the engine's 30s default wait ceiling.
func (s *Session) Wait(ctx context.Context, selector string, ms int, tabName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return err
	}
	if selector == "" {
		if ms <= 0 || ms > s.defaultWaitMS {
			ms = s.defaultWaitMS
		}
		page.WaitForTimeout(ctx, ms)
		return nil
	}
	timeout := ms
	if timeout <= 0 || timeout > s.defaultWaitMS {
		timeout = s.defaultWaitMS
	}
	if err := page.WaitForSelector(ctx, selector, timeout); err != nil {
		return ErrSelectorFailed(err.Error())
	}
	return nil
}

// OpenTab opens a new named tab, optionally navigating it immediately.
func (s *Session) OpenTab(ctx context.Context, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("tab_%d", len(s.tabs))
	}
	if _, exists := s.tabs[name]; exists {
		return ErrSelectorFailed(fmt.Sprintf("tab already exists: %s", name))
	}
	page, err := s.driver.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open tab %q: %w", name, err)
	}
	if url != "" {
		if err := page.Goto(ctx, url); err != nil {
			return ErrNavigationFailed(err.Error())
		}
	}
	s.tabs[name] = page
	s.activeTabName = name
	s.emitState(ctx)
	return nil
}

// CloseTab closes a named tab. Closing mainPage is not allowed.
func (s *Session) CloseTab(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == MainTabName {
		return ErrSelectorFailed("cannot close mainPage")
	}
	page, ok := s.tabs[name]
	if !ok {
		return ErrSelectorFailed(fmt.Sprintf("unknown tab: %s", name))
	}
	if err := page.Close(ctx); err != nil {
		return err
	}
	delete(s.tabs, name)
	if s.activeTabName == name {
		s.activeTabName = MainTabName
	}
	s.emitState(ctx)
	return nil
}

// SwitchTab makes name the active tab for subsequent untargeted operations.
func (s *Session) SwitchTab(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[name]; !ok {
		return ErrSelectorFailed(fmt.Sprintf("unknown tab: %s", name))
	}
	s.activeTabName = name
	s.emitState(ctx)
	return nil
}

// ListTabs returns the current tab metadata snapshot.
func (s *Session) ListTabs(ctx context.Context) ([]workflow.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotTabs(ctx), nil
}

// GetCurrentTab returns metadata for the active tab.
func (s *Session) GetCurrentTab(ctx context.Context) (workflow.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.snapshotTabs(ctx) {
		if t.IsActive {
			return t, nil
		}
	}
	return workflow.Tab{}, ErrSelectorFailed("no active tab")
}

// Back/Forward/Reload operate on the named or active tab.
func (s *Session) Back(ctx context.Context, tabName string) error    { return s.navAction(ctx, tabName, Page.GoBack) }
func (s *Session) Forward(ctx context.Context, tabName string) error { return s.navAction(ctx, tabName, Page.GoForward) }
func (s *Session) Reload(ctx context.Context, tabName string) error  { return s.navAction(ctx, tabName, Page.Reload) }

func (s *Session) navAction(ctx context.Context, tabName string, action func(Page, context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return err
	}
	if err := action(page, ctx); err != nil {
		return ErrNavigationFailed(err.Error())
	}
	s.emitState(ctx)
	return nil
}

// Screenshot captures the named/active tab.
func (s *Session) Screenshot(ctx context.Context, tabName string, fullPage bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(ctx, fullPage)
}

// DeterministicExtract pulls structured fields out of selector's matches
// without any AI involvement.
func (s *Session) DeterministicExtract(ctx context.Context, selector string, fields map[string]string, tabName string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return nil, err
	}
	result, err := page.ExtractFields(ctx, selector, fields)
	if err != nil {
		return nil, ErrSelectorFailed(err.Error())
	}
	return result, nil
}

// Query runs exists|absent|count against selector.
func (s *Session) Query(ctx context.Context, selector, op, tabName string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.resolveTab(tabName)
	if err != nil {
		return nil, err
	}
	switch op {
	case "exists":
		return page.Exists(ctx, selector)
	case "absent":
		exists, err := page.Exists(ctx, selector)
		if err != nil {
			return nil, ErrSelectorFailed(err.Error())
		}
		return !exists, nil
	case "count":
		count, err := page.Count(ctx, selector)
		if err != nil {
			return nil, ErrSelectorFailed(err.Error())
		}
		return count, nil
	default:
		return nil, ErrSelectorFailed(fmt.Sprintf("unsupported query op: %s", op))
	}
}

// Extract delegates to the AI collaborator with the tab's current
// snapshot as payload, then returns the raw value for the caller (the
// executor) to run through the Schema Validator.
func (s *Session) Extract(ctx context.Context, instruction string, schema map[string]any, tabName string) (any, error) {
	s.mu.Lock()
	page, _, err := s.resolveTab(tabName)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	snapshot, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot tab for extraction: %w", err)
	}
	return s.generator.Generate(ctx, instruction, map[string]any{"page_content": snapshot, "url": page.URL()}, schema)
}

// Act delegates a natural-language action to the AI collaborator. The
// generator is expected to perform the action itself (e.g. by issuing
// tool calls back into this session upstream); this method only
// forwards the instruction and current page context.
func (s *Session) Act(ctx context.Context, instruction string, tabName string) error {
	s.mu.Lock()
	page, _, err := s.resolveTab(tabName)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	snapshot, err := page.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot tab for act: %w", err)
	}
	_, err = s.generator.Generate(ctx, instruction, map[string]any{"page_content": snapshot, "url": page.URL()}, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.emitState(ctx)
	s.mu.Unlock()
	return nil
}

// ResetBrowser closes every tab except mainPage. mainPage itself is not
// navigated away from its current URL (see DESIGN.md open question #4).
func (s *Session) ResetBrowser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, page := range s.tabs {
		if name == MainTabName {
			continue
		}
		_ = page.Close(ctx)
		delete(s.tabs, name)
	}
	s.activeTabName = MainTabName
	s.emitState(ctx)
	return nil
}

// InspectTab returns the named (or active) tab's Page.Snapshot, which
// for the Playwright driver is the page's full HTML content; no
// accessibility tree is built and the content is not compacted.
func (s *Session) InspectTab(ctx context.Context, tabName string) (string, error) {
	s.mu.Lock()
	page, _, err := s.resolveTab(tabName)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	snapshot, err := page.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot tab for inspection: %w", err)
	}
	return snapshot, nil
}

// ExpandDomSelector returns the full attribute set for elementID (itself
// a CSS selector surfaced by a prior InspectTab snapshot) plus a ranked
// list of candidate selectors for that element. The ranking is a single
// candidate today: the selector the caller already has. A future
// revision that exposes stable DOM node IDs from the accessibility tree
// could rank id/data-testid/text selectors against each other here.
func (s *Session) ExpandDomSelector(ctx context.Context, elementID string) (map[string]any, error) {
	s.mu.Lock()
	page, _, err := s.resolveTab("")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	attrs, err := page.ExtractFields(ctx, elementID, map[string]string{
		"text":       "text",
		"html":       "outerHTML",
		"tag":        "tagName",
	})
	if err != nil {
		return nil, ErrSelectorFailed(err.Error())
	}
	return map[string]any{
		"attributes":          attrs,
		"candidate_selectors": []string{elementID},
	}, nil
}

// Close tears down every tab and the underlying driver.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range s.tabs {
		_ = page.Close(ctx)
	}
	return s.driver.Close(ctx)
}

// snapshotTabs must be called with s.mu held.
func (s *Session) snapshotTabs(ctx context.Context) []workflow.Tab {
	out := make([]workflow.Tab, 0, len(s.tabs))
	for name, page := range s.tabs {
		title, _ := page.Title(ctx)
		out = append(out, workflow.Tab{
			Name:     name,
			URL:      page.URL(),
			Title:    title,
			IsActive: name == s.activeTabName,
		})
	}
	return out
}

// emitState persists the current BrowserState and publishes a
// browser_state event. Both are fire-and-forget (run on a detached
// goroutine; their errors are discarded without logging, and the event
// is sent once with no redelivery). Emission is non-blocking — a
// browser mutation must never fail because the event bus is briefly
// unavailable. Must be called with s.mu held.
func (s *Session) emitState(ctx context.Context) {
	state := &workflow.BrowserState{
		Tabs:          s.snapshotTabs(ctx),
		ActiveTabName: s.activeTabName,
	}
	go func() {
		bgCtx := context.Background()
		_ = s.backend.SaveBrowserState(bgCtx, s.workflowID, state)
		if s.events != nil {
			_ = s.events.Publish(bgCtx, s.workflowID, "browser_state", state)
		}
	}()
}
