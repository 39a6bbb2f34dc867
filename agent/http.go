package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// HTTPAgent invokes a remote worker over HTTP. The step definition and
// input are POSTed as JSON; the response body is decoded as the step
// output. Non-2xx responses are returned as errors with the server's
// message when one is provided.
type HTTPAgent struct {
	endpoint string
	client   *http.Client
}

type httpRequest struct {
	StepID    string         `json:"step_id"`
	AgentType string         `json:"agent_type"`
	Input     map[string]any `json:"input,omitempty"`
}

type httpResponse struct {
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewHTTPAgent returns an agent that forwards steps to endpoint.
// A nil client falls back to a client with a 30s overall timeout;
// per-step timeouts still come from the context deadline.
func NewHTTPAgent(endpoint string, client *http.Client) *HTTPAgent {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPAgent{endpoint: endpoint, client: client}
}

func (h *HTTPAgent) Execute(ctx context.Context, step *workflow.Step, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(httpRequest{
		StepID:    step.ID,
		AgentType: step.AgentType,
		Input:     input,
	})
	if err != nil {
		return nil, fmt.Errorf("encode step request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}

	var decoded httpResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("decode agent response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, msg)
	}
	return decoded.Output, nil
}
