package bidflow

import "time"

// Config holds tunables for the orchestration engine.
type Config struct {
	// TenantConcurrency is the default ceiling on simultaneously
	// executing steps per tenant. Steps beyond the ceiling queue.
	TenantConcurrency int

	// DispatchInterval is how often the scheduling loop re-checks for
	// runnable steps while waiting on quota or in-flight work.
	DispatchInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight steps
	// during graceful shutdown.
	ShutdownTimeout time.Duration

	// StuckThreshold is how long an active execution may go without a
	// state update before the health monitor flags it as stuck.
	StuckThreshold time.Duration

	// TimeoutThreshold is the workflow-level advisory timeout. The
	// health monitor reports warning severity above WarningRatio of
	// this value and critical beyond it.
	TimeoutThreshold time.Duration

	// WarningRatio is the fraction of TimeoutThreshold at which an
	// execution moves from normal to warning severity.
	WarningRatio float64

	// MonitorInterval is how often the health monitor scans executions.
	MonitorInterval time.Duration

	// CheckpointRetention is the number of most-recent checkpoints that
	// cleanup always keeps per execution, regardless of cutoff age.
	CheckpointRetention int

	// NotificationHistoryLimit caps the system-wide delivery attempt
	// history; oldest entries are evicted beyond it.
	NotificationHistoryLimit int

	// WorkflowHistoryLimit caps the per-execution attempt history
	// surfaced to callers.
	WorkflowHistoryLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TenantConcurrency:        5,
		DispatchInterval:         100 * time.Millisecond,
		ShutdownTimeout:          30 * time.Second,
		StuckThreshold:           2 * time.Hour,
		TimeoutThreshold:         24 * time.Hour,
		WarningRatio:             0.8,
		MonitorInterval:          5 * time.Minute,
		CheckpointRetention:      3,
		NotificationHistoryLimit: 1000,
		WorkflowHistoryLimit:     50,
	}
}
