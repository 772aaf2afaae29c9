package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/weavegraph/core/cmd/engine/handlers"
	"github.com/weavegraph/core/cmd/engine/routes"
	"github.com/weavegraph/core/internal/bootstrap"
	"github.com/weavegraph/core/internal/observability"
	"github.com/weavegraph/core/internal/workflowsvc"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (store, locking, event bus, browser manager, AI collaborator)
	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	observability.StartDebugServer(ctx, components.Config.Telemetry, components.Logger)

	svc := workflowsvc.New(components)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, components, svc)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration.
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	return e
}

// setupMiddleware configures all middleware for the Echo server.
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint.
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "engine"})
	})
}

// registerRoutes registers all application routes.
func registerRoutes(e *echo.Echo, components *bootstrap.Components, svc *workflowsvc.Service) {
	routes.RegisterWorkflowRoutes(e, components, svc)
}

// startServer starts the Echo server on the configured port.
func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("Starting engine", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
