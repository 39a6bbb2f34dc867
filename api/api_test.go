package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/agent"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/api"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/engine"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/store/memory"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := bidflow.DefaultConfig()
	cfg.DispatchInterval = 5 * time.Millisecond

	eng, err := engine.Build(memory.New(),
		engine.WithConfig(cfg),
		engine.WithAgent("worker", agent.Func(func(_ context.Context, step *workflow.Step, _ map[string]any) (map[string]any, error) {
			return map[string]any{step.ID: "done"}, nil
		})),
	)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	srv := httptest.NewServer(api.New(eng).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// do sends a JSON request with tenant identity headers and decodes the
// response body into out when it is non-nil.
func do(t *testing.T, srv *httptest.Server, method, path, tenant string, body, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(api.HeaderTenantID, tenant)
		req.Header.Set(api.HeaderUserID, "user-1")
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func createDefinition(t *testing.T, srv *httptest.Server, tenant string) *workflow.Definition {
	t.Helper()

	def := map[string]any{
		"name": "bid-pipeline",
		"steps": []map[string]any{
			{"id": "analyze", "name": "Analyze", "agent_type": "worker"},
			{"id": "draft", "name": "Draft", "agent_type": "worker", "dependencies": []string{"analyze"}, "is_checkpoint": true},
		},
	}
	var created workflow.Definition
	res := do(t, srv, http.MethodPost, "/v1/definitions", tenant, def, &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return &created
}

func waitForStatus(t *testing.T, srv *httptest.Server, tenant, execID string, want workflow.Status) api.StatusResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status api.StatusResponse
		res := do(t, srv, http.MethodGet, "/v1/workflows/"+execID+"/status", tenant, nil, &status)
		require.Equal(t, http.StatusOK, res.StatusCode)
		if status.Status == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached %s", execID, want)
	return api.StatusResponse{}
}

func TestMissingTenantHeaderRejected(t *testing.T) {
	srv := newTestServer(t)

	res := do(t, srv, http.MethodGet, "/v1/workflows", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	srv := newTestServer(t)

	res := do(t, srv, http.MethodGet, "/v1/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWorkflowLifecycle(t *testing.T) {
	srv := newTestServer(t)
	def := createDefinition(t, srv, "tenant-a")

	var started workflow.State
	res := do(t, srv, http.MethodPost, "/v1/workflows", "tenant-a",
		api.StartWorkflowRequest{DefinitionID: def.ID.String(), Input: map[string]any{"rfp": "doc-1"}},
		&started)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	final := waitForStatus(t, srv, "tenant-a", started.ID.String(), workflow.StatusCompleted)
	assert.ElementsMatch(t, []string{"analyze", "draft"}, final.CompletedSteps)
	assert.Contains(t, final.AllowedActions, "restart")
	assert.Equal(t, "done", final.StateData["draft"])

	var list []*workflow.State
	res = do(t, srv, http.MethodGet, "/v1/workflows?status=COMPLETED", "tenant-a", nil, &list)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, list, 1)

	var checkpoints []map[string]any
	res = do(t, srv, http.MethodGet, "/v1/workflows/"+started.ID.String()+"/checkpoints", "tenant-a", nil, &checkpoints)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "draft", checkpoints[0]["step_id"])
}

func TestControlRejectsIllegalTransition(t *testing.T) {
	srv := newTestServer(t)
	def := createDefinition(t, srv, "tenant-a")

	var started workflow.State
	res := do(t, srv, http.MethodPost, "/v1/workflows", "tenant-a",
		api.StartWorkflowRequest{DefinitionID: def.ID.String()}, &started)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	waitForStatus(t, srv, "tenant-a", started.ID.String(), workflow.StatusCompleted)

	var payload struct {
		Message struct {
			AllowedActions []string `json:"allowed_actions"`
		} `json:"message"`
	}
	res = do(t, srv, http.MethodPost, "/v1/workflows/"+started.ID.String()+"/control", "tenant-a",
		api.ControlRequest{Action: "pause"}, &payload)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Contains(t, payload.Message.AllowedActions, "restart")

	res = do(t, srv, http.MethodPost, "/v1/workflows/"+started.ID.String()+"/control", "tenant-a",
		api.ControlRequest{Action: "explode"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCrossTenantIsolation(t *testing.T) {
	srv := newTestServer(t)
	def := createDefinition(t, srv, "tenant-a")

	var started workflow.State
	res := do(t, srv, http.MethodPost, "/v1/workflows", "tenant-a",
		api.StartWorkflowRequest{DefinitionID: def.ID.String()}, &started)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	waitForStatus(t, srv, "tenant-a", started.ID.String(), workflow.StatusCompleted)

	res = do(t, srv, http.MethodGet, "/v1/workflows/"+started.ID.String()+"/status", "tenant-b", nil, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = do(t, srv, http.MethodGet, "/v1/definitions/"+def.ID.String(), "tenant-b", nil, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// A foreign tenant sees an empty list, not an error.
	var list []*workflow.State
	res = do(t, srv, http.MethodGet, "/v1/workflows", "tenant-b", nil, &list)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, list)
}

func TestManageBulkIsolatesFailures(t *testing.T) {
	srv := newTestServer(t)
	def := createDefinition(t, srv, "tenant-a")

	var started workflow.State
	res := do(t, srv, http.MethodPost, "/v1/workflows", "tenant-a",
		api.StartWorkflowRequest{DefinitionID: def.ID.String()}, &started)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	waitForStatus(t, srv, "tenant-a", started.ID.String(), workflow.StatusCompleted)

	var results []map[string]any
	res = do(t, srv, http.MethodPost, "/v1/workflows/manage", "tenant-a",
		api.ManageRequest{Action: "restart", ExecutionIDs: []string{started.ID.String(), "wf_01h455vb4pex5vsknk084sn02q"}},
		&results)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0]["ok"])
	assert.Equal(t, "not_found", results[1]["error_kind"])

	// Targets can also be resolved from a filter over the tenant.
	var cleaned []map[string]any
	res = do(t, srv, http.MethodPost, "/v1/workflows/manage", "tenant-a",
		api.ManageRequest{Action: "cleanup", Filter: &api.ManageFilter{Status: "COMPLETED"}},
		&cleaned)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, cleaned)
	for _, entry := range cleaned {
		assert.Equal(t, true, entry["ok"])
	}

	res = do(t, srv, http.MethodPost, "/v1/workflows/manage", "tenant-a",
		api.ManageRequest{Action: "defragment", ExecutionIDs: []string{started.ID.String()}}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownWorkflowIs404(t *testing.T) {
	srv := newTestServer(t)

	res := do(t, srv, http.MethodGet, "/v1/workflows/wf_01h455vb4pex5vsknk084sn02q/status", "tenant-a", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRuleCRUD(t *testing.T) {
	srv := newTestServer(t)

	rule := map[string]any{
		"event_type": "completion",
		"method":     "webhook",
		"target":     "https://example.com/hook",
		"enabled":    true,
	}
	var created map[string]any
	res := do(t, srv, http.MethodPost, "/v1/rules", "tenant-a", rule, &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	ruleID, _ := created["id"].(string)
	require.NotEmpty(t, ruleID)
	assert.Equal(t, "tenant-a", created["tenant_id"])

	var rules []map[string]any
	res = do(t, srv, http.MethodGet, "/v1/rules", "tenant-a", nil, &rules)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, rules, 1)

	// Cross-tenant access looks like absence.
	res = do(t, srv, http.MethodGet, "/v1/rules/"+ruleID, "tenant-b", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	update := map[string]any{
		"event_type": "completion",
		"method":     "log",
		"enabled":    false,
	}
	var updated map[string]any
	res = do(t, srv, http.MethodPut, "/v1/rules/"+ruleID, "tenant-a", update, &updated)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, updated["enabled"])

	res = do(t, srv, http.MethodDelete, "/v1/rules/"+ruleID, "tenant-a", nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestRuleValidationRejected(t *testing.T) {
	srv := newTestServer(t)

	rule := map[string]any{
		"event_type": "completion",
		"method":     "webhook", // webhook requires a target
		"enabled":    true,
	}
	res := do(t, srv, http.MethodPost, "/v1/rules", "tenant-a", rule, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestDeleteRequiresForceWhileActive(t *testing.T) {
	// An agent that blocks keeps the workflow RUNNING.
	cfg := bidflow.DefaultConfig()
	cfg.DispatchInterval = 5 * time.Millisecond
	release := make(chan struct{})
	eng, err := engine.Build(memory.New(),
		engine.WithConfig(cfg),
		engine.WithAgent("worker", agent.Func(func(ctx context.Context, _ *workflow.Step, _ map[string]any) (map[string]any, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return map[string]any{}, nil
		})),
	)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { close(release); _ = eng.Stop(context.Background()) })

	blocked := httptest.NewServer(api.New(eng).Handler())
	t.Cleanup(blocked.Close)

	def := createDefinition(t, blocked, "tenant-a")
	var started workflow.State
	res := do(t, blocked, http.MethodPost, "/v1/workflows", "tenant-a",
		api.StartWorkflowRequest{DefinitionID: def.ID.String()}, &started)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	waitForStatus(t, blocked, "tenant-a", started.ID.String(), workflow.StatusRunning)

	res = do(t, blocked, http.MethodDelete, "/v1/workflows/"+started.ID.String(), "tenant-a", nil, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	path := fmt.Sprintf("/v1/workflows/%s?force=true&cleanup_checkpoints=true", started.ID.String())
	res = do(t, blocked, http.MethodDelete, path, "tenant-a", nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}
