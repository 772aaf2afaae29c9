package executor

import "context"

// DebugAction runs one browser_action-shaped operation without creating
// a node, for the debug_action command (spec.md §6). It reuses the same
// dispatch handleBrowserAction nodes go through, so debug calls and node
// execution can never drift in behavior.
func (ex *Executor) DebugAction(ctx context.Context, action string, config map[string]any) (any, error) {
	merged := make(map[string]any, len(config)+1)
	for k, v := range config {
		merged[k] = v
	}
	merged["action"] = action
	return ex.handleBrowserAction(ctx, merged)
}

// ResetBrowser closes every tab but mainPage, for execute_nodes'
// reset_browser_first option.
func (ex *Executor) ResetBrowser(ctx context.Context) error {
	if err := ex.requireBrowser(); err != nil {
		return err
	}
	return ex.browser.ResetBrowser(ctx)
}
