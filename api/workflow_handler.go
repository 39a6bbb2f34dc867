package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// StartWorkflowRequest creates and starts a new execution from an
// existing definition.
type StartWorkflowRequest struct {
	DefinitionID string            `json:"definition_id"`
	Input        map[string]any    `json:"input,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ControlRequest applies one control action to an execution.
type ControlRequest struct {
	Action       string `json:"action"`
	Reason       string `json:"reason,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// ManageRequest applies one administrative action to many executions,
// addressed by explicit IDs or by a filter over the caller's tenant.
type ManageRequest struct {
	Action       string        `json:"action"`
	ExecutionIDs []string      `json:"execution_ids,omitempty"`
	Filter       *ManageFilter `json:"filter,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// ManageFilter selects executions for a bulk operation by attribute.
type ManageFilter struct {
	Status  string `json:"status,omitempty"`
	Project string `json:"project,omitempty"`
}

// StatusResponse is an execution record plus the control actions legal
// from its current status.
type StatusResponse struct {
	*workflow.State
	AllowedActions []string `json:"allowed_actions"`
}

func (a *API) createDefinition(c echo.Context) error {
	var def workflow.Definition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	created, err := a.eng.Orchestrator().CreateDefinition(c.Request().Context(), &def)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *API) getDefinition(c echo.Context) error {
	defID, err := id.ParseDefinitionID(c.Param("defId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid definition ID: "+err.Error())
	}

	def, err := a.eng.Orchestrator().Definition(c.Request().Context(), defID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

func (a *API) startWorkflow(c echo.Context) error {
	var req StartWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	defID, err := id.ParseDefinitionID(req.DefinitionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid definition ID: "+err.Error())
	}

	st, err := a.eng.Orchestrator().Start(c.Request().Context(), defID, req.Input, req.Metadata)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func (a *API) listWorkflows(c echo.Context) error {
	f := workflow.Filter{
		Status:  workflow.Status(c.QueryParam("status")),
		Project: c.QueryParam("project"),
	}
	echo.QueryParamsBinder(c).Int("limit", &f.Limit).Int("offset", &f.Offset)

	states, err := a.eng.Orchestrator().List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, states)
}

func (a *API) workflowStatus(c echo.Context) error {
	execID, err := id.ParseExecutionID(c.Param("execId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID: "+err.Error())
	}

	st, err := a.eng.Orchestrator().Status(c.Request().Context(), execID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, StatusResponse{
		State:          st,
		AllowedActions: workflow.AllowedActionStrings(st.Status),
	})
}

func (a *API) controlWorkflow(c echo.Context) error {
	execID, err := id.ParseExecutionID(c.Param("execId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID: "+err.Error())
	}

	var req ControlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	action, ok := workflow.ParseAction(req.Action)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action: "+req.Action)
	}

	ctx := c.Request().Context()
	orch := a.eng.Orchestrator()

	var st *workflow.State
	switch action {
	case workflow.ActionStart:
		st, err = orch.StartExecution(ctx, execID)
	case workflow.ActionPause:
		st, err = orch.Pause(ctx, execID, req.Reason)
	case workflow.ActionResume:
		st, err = orch.Resume(ctx, execID)
	case workflow.ActionCancel:
		st, err = orch.Cancel(ctx, execID, req.Reason)
	case workflow.ActionRestart:
		st, err = orch.Restart(ctx, execID)
	case workflow.ActionRecover:
		checkpointID := id.Nil
		if req.CheckpointID != "" {
			checkpointID, err = id.ParseCheckpointID(req.CheckpointID)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid checkpoint ID: "+err.Error())
			}
		}
		st, err = orch.Recover(ctx, execID, checkpointID)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, StatusResponse{
		State:          st,
		AllowedActions: workflow.AllowedActionStrings(st.Status),
	})
}

func (a *API) manageWorkflows(c echo.Context) error {
	var req ManageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if len(req.ExecutionIDs) == 0 && req.Filter == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no execution IDs or filter given")
	}

	execIDs := make([]id.ExecutionID, 0, len(req.ExecutionIDs))
	for _, raw := range req.ExecutionIDs {
		execID, err := id.ParseExecutionID(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID "+raw+": "+err.Error())
		}
		execIDs = append(execIDs, execID)
	}
	var f *workflow.Filter
	if req.Filter != nil {
		f = &workflow.Filter{
			Status:  workflow.Status(req.Filter.Status),
			Project: req.Filter.Project,
		}
	}

	results, err := a.eng.Orchestrator().Manage(c.Request().Context(), req.Action, execIDs, f, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, results)
}

func (a *API) deleteWorkflow(c echo.Context) error {
	execID, err := id.ParseExecutionID(c.Param("execId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID: "+err.Error())
	}

	var force, cleanup bool
	echo.QueryParamsBinder(c).Bool("force", &force).Bool("cleanup_checkpoints", &cleanup)

	if err := a.eng.Orchestrator().Delete(c.Request().Context(), execID, force, cleanup); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) listCheckpoints(c echo.Context) error {
	execID, err := id.ParseExecutionID(c.Param("execId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID: "+err.Error())
	}

	cps, err := a.eng.Orchestrator().Checkpoints(c.Request().Context(), execID)
	if err != nil {
		return httpError(err)
	}

	// Payloads can be large; return metadata only.
	type checkpointInfo struct {
		ID          string    `json:"id"`
		StepID      string    `json:"step_id"`
		Recoverable bool      `json:"is_recoverable"`
		CreatedAt   time.Time `json:"created_at"`
	}
	infos := make([]checkpointInfo, 0, len(cps))
	for _, cp := range cps {
		infos = append(infos, checkpointInfo{
			ID:          cp.ID.String(),
			StepID:      cp.StepID,
			Recoverable: cp.Recoverable,
			CreatedAt:   cp.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, infos)
}
