// Package handlers implements the echo handlers behind every external
// interface command: thin binders that decode the request, validate its
// shape, call into workflowsvc.Service, and map the result (or error)
// onto the wire. Grounded on the teacher's cmd/orchestrator/handlers
// package (one handler struct per bounded concern, constructed with its
// service dependency).
package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/workflowsvc"
)

// WorkflowHandler serves every command in spec.md §6 scoped to a single
// workflow ID path parameter.
type WorkflowHandler struct {
	svc      *workflowsvc.Service
	validate *validator.Validate
}

// NewWorkflowHandler creates a WorkflowHandler.
func NewWorkflowHandler(svc *workflowsvc.Service) *WorkflowHandler {
	return &WorkflowHandler{svc: svc, validate: validator.New()}
}

func (h *WorkflowHandler) bind(c echo.Context, out any) error {
	if err := c.Bind(out); err != nil {
		return apierr.New(apierr.CodeValidationFailed, "malformed request body")
	}
	if err := h.validate.Struct(out); err != nil {
		return apierr.New(apierr.CodeValidationFailed, err.Error())
	}
	return nil
}

func workflowID(c echo.Context) string {
	return c.Param("id")
}

// AddOrReplaceNodes handles POST /workflows/:id/nodes.
func (h *WorkflowHandler) AddOrReplaceNodes(c echo.Context) error {
	var req workflowsvc.AddOrReplaceNodesRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	nodes, err := h.svc.AddOrReplaceNodes(c.Request().Context(), workflowID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}

// DeleteNodesRequest is the delete_nodes command body.
type DeleteNodesRequest struct {
	NodeIDs []any `json:"node_ids" validate:"required,min=1"`
}

// DeleteNodes handles POST /workflows/:id/nodes/delete.
func (h *WorkflowHandler) DeleteNodes(c echo.Context) error {
	var req DeleteNodesRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	nodes, err := h.svc.DeleteNodes(c.Request().Context(), workflowID(c), req.NodeIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}

// ExecuteNodes handles POST /workflows/:id/execute.
func (h *WorkflowHandler) ExecuteNodes(c echo.Context) error {
	var req workflowsvc.ExecuteNodesRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	report, err := h.svc.ExecuteNodes(c.Request().Context(), workflowID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GetWorkflowData handles GET /workflows/:id/data.
func (h *WorkflowHandler) GetWorkflowData(c echo.Context) error {
	req := workflowsvc.GetWorkflowDataRequest{
		Bucket:  c.QueryParam("bucket"),
		Pattern: c.QueryParam("pattern"),
	}
	resp, err := h.svc.GetWorkflowData(c.Request().Context(), workflowID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// SetVariableRequest is the set_variable command body.
type SetVariableRequest struct {
	Name   string `json:"name" validate:"required"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// SetVariable handles POST /workflows/:id/variables.
func (h *WorkflowHandler) SetVariable(c echo.Context) error {
	var req SetVariableRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.SetVariable(c.Request().Context(), workflowID(c), req.Name, req.Value); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearVariableRequest is the clear_variable command body.
type ClearVariableRequest struct {
	Name   string `json:"name" validate:"required"`
	Reason string `json:"reason"`
}

// ClearVariable handles POST /workflows/:id/variables/clear.
func (h *WorkflowHandler) ClearVariable(c echo.Context) error {
	var req ClearVariableRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ClearVariable(c.Request().Context(), workflowID(c), req.Name); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearAllVariables handles POST /workflows/:id/variables/clear-all.
func (h *WorkflowHandler) ClearAllVariables(c echo.Context) error {
	if err := h.svc.ClearAllVariables(c.Request().Context(), workflowID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdatePlan handles POST /workflows/:id/plan.
func (h *WorkflowHandler) UpdatePlan(c echo.Context) error {
	var req workflowsvc.UpdatePlanRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	plan, err := h.svc.UpdatePlan(c.Request().Context(), workflowID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, plan)
}

// UpdateWorkflowDescriptionRequest is the update_workflow_description command body.
type UpdateWorkflowDescriptionRequest struct {
	Text   string `json:"text" validate:"required"`
	Reason string `json:"reason"`
}

// UpdateWorkflowDescription handles POST /workflows/:id/description.
func (h *WorkflowHandler) UpdateWorkflowDescription(c echo.Context) error {
	var req UpdateWorkflowDescriptionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	version, err := h.svc.UpdateWorkflowDescription(c.Request().Context(), workflowID(c), req.Text, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, version)
}

// DebugAction handles POST /workflows/:id/debug-action.
func (h *WorkflowHandler) DebugAction(c echo.Context) error {
	var req workflowsvc.DebugActionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	result, err := h.svc.DebugAction(c.Request().Context(), workflowID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"result": result})
}

// InspectTab handles GET /workflows/:id/tabs/inspect.
func (h *WorkflowHandler) InspectTab(c echo.Context) error {
	snapshot, err := h.svc.InspectTab(c.Request().Context(), workflowID(c), c.QueryParam("tab"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"snapshot": snapshot})
}

// ExpandDomSelector handles GET /workflows/:id/tabs/selector.
func (h *WorkflowHandler) ExpandDomSelector(c echo.Context) error {
	elementID := c.QueryParam("element_id")
	if elementID == "" {
		return apierr.New(apierr.CodeValidationFailed, "element_id is required")
	}
	result, err := h.svc.ExpandDomSelector(c.Request().Context(), workflowID(c), elementID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
