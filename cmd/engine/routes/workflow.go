// Package routes wires cmd/engine's handlers onto an echo instance, one
// group per resource. Grounded on the teacher's cmd/orchestrator/routes
// package (route groups keyed by resource, registered from main.go).
package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weavegraph/core/cmd/engine/handlers"
	"github.com/weavegraph/core/internal/bootstrap"
	"github.com/weavegraph/core/internal/workflowsvc"
)

// RegisterWorkflowRoutes registers every spec.md §6 command under
// /workflows/:id, plus the SSE event stream.
func RegisterWorkflowRoutes(e *echo.Echo, components *bootstrap.Components, svc *workflowsvc.Service) {
	workflowHandler := handlers.NewWorkflowHandler(svc)
	eventsHandler := handlers.NewEventsHandler(components)

	workflows := e.Group("/workflows/:id")
	{
		workflows.POST("/nodes", workflowHandler.AddOrReplaceNodes)
		workflows.POST("/nodes/delete", workflowHandler.DeleteNodes)
		workflows.POST("/execute", workflowHandler.ExecuteNodes)
		workflows.GET("/data", workflowHandler.GetWorkflowData)
		workflows.POST("/variables", workflowHandler.SetVariable)
		workflows.POST("/variables/clear", workflowHandler.ClearVariable)
		workflows.POST("/variables/clear-all", workflowHandler.ClearAllVariables)
		workflows.POST("/plan", workflowHandler.UpdatePlan)
		workflows.POST("/description", workflowHandler.UpdateWorkflowDescription)
		workflows.POST("/debug-action", workflowHandler.DebugAction)
		workflows.GET("/tabs/inspect", workflowHandler.InspectTab)
		workflows.GET("/tabs/selector", workflowHandler.ExpandDomSelector)
		workflows.GET("/events", eventsHandler.Stream)
	}
}
