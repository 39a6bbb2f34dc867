// Package api exposes the bidflow engine over HTTP. Every route under
// /v1 except the health endpoint requires caller identity headers
// (X-Tenant-ID, optionally X-User-ID), which become the request scope.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/engine"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/scope"
)

// Identity headers resolved into the request scope.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// API wires the HTTP handlers for the bidflow engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from a bidflow Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Handler returns a fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	a.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers all bidflow API routes into the given Echo
// instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/health", a.health)

	g := e.Group("/v1", a.requireScope)

	g.POST("/definitions", a.createDefinition)
	g.GET("/definitions/:defId", a.getDefinition)

	g.POST("/workflows", a.startWorkflow)
	g.GET("/workflows", a.listWorkflows)
	g.POST("/workflows/manage", a.manageWorkflows)
	g.GET("/workflows/:execId/status", a.workflowStatus)
	g.POST("/workflows/:execId/control", a.controlWorkflow)
	g.DELETE("/workflows/:execId", a.deleteWorkflow)
	g.GET("/workflows/:execId/checkpoints", a.listCheckpoints)
	g.GET("/workflows/:execId/events", a.streamEvents)

	g.POST("/rules", a.createRule)
	g.GET("/rules", a.listRules)
	g.GET("/rules/:ruleId", a.getRule)
	g.PUT("/rules/:ruleId", a.updateRule)
	g.DELETE("/rules/:ruleId", a.deleteRule)
	g.GET("/notifications", a.notificationHistory)
}

// requireScope resolves the identity headers into the request scope.
// Requests without a tenant are rejected before any handler runs.
func (a *API) requireScope(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := c.Request().Header.Get(HeaderTenantID)
		if tenantID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderTenantID+" header")
		}
		userID := c.Request().Header.Get(HeaderUserID)

		ctx := scope.WithScope(c.Request().Context(), scope.Scope{
			TenantID: tenantID,
			UserID:   userID,
		})
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// httpError translates engine errors into HTTP status codes. Invalid
// transitions carry the set of currently legal actions in the payload.
func httpError(err error) error {
	var (
		invalid    *bidflow.InvalidTransitionError
		validation *bidflow.ValidationError
	)
	switch {
	case errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusConflict, map[string]any{
			"message":         invalid.Error(),
			"allowed_actions": invalid.Allowed,
		})
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.Is(err, bidflow.ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, bidflow.ErrNotFound),
		errors.Is(err, bidflow.ErrDefinitionNotFound),
		errors.Is(err, bidflow.ErrCheckpointNotFound),
		errors.Is(err, bidflow.ErrRuleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, bidflow.ErrInvalidTransition),
		errors.Is(err, bidflow.ErrAlreadyExists),
		errors.Is(err, bidflow.ErrActiveExecutionExists),
		errors.Is(err, bidflow.ErrNoCheckpointAvailable),
		errors.Is(err, bidflow.ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// health reports engine liveness and the last monitor sweep.
func (a *API) health(c echo.Context) error {
	report := a.eng.Monitor().LastReport()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"report": report,
	})
}
