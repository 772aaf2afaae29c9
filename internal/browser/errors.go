package browser

import "github.com/weavegraph/core/internal/apierr"

// ErrNavigationFailed wraps the deterministic check a browser_action
// raises when a click/type meant to progress the page neither made its
// selector vanish nor changed the URL.
func ErrNavigationFailed(detail string) *apierr.Error {
	return apierr.New(apierr.CodeNavigationFailed, "navigation did not progress the page: "+detail)
}

// ErrSelectorFailed wraps selector/locator failures from the driver.
func ErrSelectorFailed(detail string) *apierr.Error {
	return apierr.New(apierr.CodeSelectorFailed, detail)
}
