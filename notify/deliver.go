package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Delivery is one notification handed to a Deliverer.
type Delivery struct {
	Method  Method         `json:"method"`
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload"`
}

// Deliverer sends a notification over one channel. Implementations must
// be safe for concurrent use.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, d Delivery) error

func (f DelivererFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// HTTPDeliverer POSTs the notification payload as JSON to the rule's
// target URL. It serves the webhook and slack methods.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer returns an HTTP deliverer. A nil client falls back
// to one with a 10s timeout.
func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPDeliverer{client: client}
}

func (h *HTTPDeliverer) Deliver(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification target returned %d", resp.StatusCode)
	}
	return nil
}

// LogDeliverer writes notifications to the logger. It is the default
// for the log method and a safe fallback in development.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer returns a deliverer that logs notifications.
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (l *LogDeliverer) Deliver(ctx context.Context, d Delivery) error {
	l.logger.InfoContext(ctx, "notification",
		"method", d.Method,
		"target", d.Target,
		"payload", d.Payload,
	)
	return nil
}
