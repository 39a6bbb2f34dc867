package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/scope"
)

func (a *API) createRule(c echo.Context) error {
	var r notify.Rule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	// The caller's tenant always wins over whatever the body claims.
	tenantID, _ := scope.Capture(c.Request().Context())
	r.TenantID = tenantID
	r.ID = id.NewRuleID()
	r.Entity = bidflow.NewEntity()

	if err := r.Validate(); err != nil {
		return httpError(err)
	}
	if err := a.eng.Rules().CreateRule(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, &r)
}

func (a *API) listRules(c echo.Context) error {
	tenantID, _ := scope.Capture(c.Request().Context())

	rules, err := a.eng.Rules().ListRules(c.Request().Context(), tenantID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rules)
}

func (a *API) getRule(c echo.Context) error {
	ruleID, err := id.ParseRuleID(c.Param("ruleId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule ID: "+err.Error())
	}
	tenantID, _ := scope.Capture(c.Request().Context())

	r, err := a.eng.Rules().GetRule(c.Request().Context(), tenantID, ruleID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (a *API) updateRule(c echo.Context) error {
	ruleID, err := id.ParseRuleID(c.Param("ruleId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule ID: "+err.Error())
	}
	tenantID, _ := scope.Capture(c.Request().Context())

	current, err := a.eng.Rules().GetRule(c.Request().Context(), tenantID, ruleID)
	if err != nil {
		return httpError(err)
	}

	var r notify.Rule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	r.ID = current.ID
	r.TenantID = current.TenantID
	r.Entity = current.Entity

	if err := r.Validate(); err != nil {
		return httpError(err)
	}
	if err := a.eng.Rules().UpdateRule(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &r)
}

func (a *API) deleteRule(c echo.Context) error {
	ruleID, err := id.ParseRuleID(c.Param("ruleId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule ID: "+err.Error())
	}
	tenantID, _ := scope.Capture(c.Request().Context())

	if err := a.eng.Rules().DeleteRule(c.Request().Context(), tenantID, ruleID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) notificationHistory(c echo.Context) error {
	tenantID, _ := scope.Capture(c.Request().Context())
	executionID := c.QueryParam("execution_id")

	attempts := a.eng.Notifier().History(tenantID, executionID)
	return c.JSON(http.StatusOK, attempts)
}
