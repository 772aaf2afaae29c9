package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weavegraph/core/internal/apierr"
)

// HTTPErrorHandler maps every error a handler returns onto the
// {code,message,details} envelope from spec.md §6. A *apierr.Error maps
// through apierr.HTTPStatus; an *echo.HTTPError (routing or binding
// failures raised by echo itself) keeps its own status under the
// validation_failed code; anything else becomes a 500 with code
// store_failure and the error's message.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		_ = c.JSON(apierr.HTTPStatus(apiErr.ErrCode), apiErr)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, map[string]any{
			"code":    "validation_failed",
			"message": httpErr.Message,
		})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, map[string]any{
		"code":    "store_failure",
		"message": err.Error(),
	})
}
