package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/bootstrap"
	"github.com/weavegraph/core/internal/workflowsvc"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestHandler(t *testing.T) (*echo.Echo, *WorkflowHandler) {
	t.Helper()
	components, err := bootstrap.Setup(context.Background(), "handlers-test",
		bootstrap.WithMemoryStore(), bootstrap.WithoutRedis(), bootstrap.WithCustomAI(ai.TextGenerator(stubGenerator{})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	return e, NewWorkflowHandler(workflowsvc.New(components))
}

func TestAddOrReplaceNodes_ValidRequest(t *testing.T) {
	e, h := newTestHandler(t)

	body := `{"target":"end","nodes":[{"type":"context","config":{"set":{"greeting":"hi"}}}]}`
	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/nodes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("wf-1")

	err := h.AddOrReplaceNodes(c)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	nodes, ok := decoded["nodes"].([]any)
	require.True(t, ok)
	require.Len(t, nodes, 1)
}

func TestAddOrReplaceNodes_MissingNodesFailsValidation(t *testing.T) {
	e, h := newTestHandler(t)

	body := `{"target":"end","nodes":[]}`
	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-2/nodes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("wf-2")

	err := h.AddOrReplaceNodes(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExpandDomSelector_MissingElementIDFailsValidation(t *testing.T) {
	e, h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-3/tabs/selector", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("wf-3")

	err := h.ExpandDomSelector(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
