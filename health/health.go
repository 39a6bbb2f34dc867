// Package health classifies long-running executions and periodically
// scans for stuck or timed-out workflows. Findings are advisory: the
// monitor reports and notifies, it never mutates execution state.
package health

import (
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Level grades how far past its expected runtime an execution is.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Classification is the health verdict for one execution.
type Classification struct {
	ExecutionID string        `json:"execution_id"`
	TenantID    string        `json:"tenant_id"`
	Status      string        `json:"status"`
	Level       Level         `json:"level"`
	Stuck       bool          `json:"stuck"`
	Age         time.Duration `json:"age"`
	SinceUpdate time.Duration `json:"since_update"`
}

// ClassifyStuck reports whether an active execution has gone without a
// state update for longer than threshold. Terminal executions are never
// stuck.
func ClassifyStuck(st *workflow.State, now time.Time, threshold time.Duration) bool {
	if !st.Status.Active() {
		return false
	}
	return now.Sub(st.UpdatedAt) > threshold
}

// ClassifyTimeout grades how long an execution has gone without a state
// update against the timeout threshold: normal up to warningRatio of the
// threshold, warning up to the threshold, critical beyond it. The basis
// is the same quantity stuck detection uses, so a workflow that is still
// making progress never times out regardless of total age.
func ClassifyTimeout(st *workflow.State, now time.Time, threshold time.Duration, warningRatio float64) Level {
	if st.Status.Terminal() {
		return LevelNormal
	}
	sinceUpdate := now.Sub(st.UpdatedAt)
	switch {
	case sinceUpdate <= time.Duration(float64(threshold)*warningRatio):
		return LevelNormal
	case sinceUpdate <= threshold:
		return LevelWarning
	default:
		return LevelCritical
	}
}

// Classify produces the full verdict for one execution.
func Classify(st *workflow.State, now time.Time, stuckThreshold, timeoutThreshold time.Duration, warningRatio float64) Classification {
	return Classification{
		ExecutionID: st.ID.String(),
		TenantID:    st.TenantID,
		Status:      string(st.Status),
		Level:       ClassifyTimeout(st, now, timeoutThreshold, warningRatio),
		Stuck:       ClassifyStuck(st, now, stuckThreshold),
		Age:         now.Sub(st.CreatedAt),
		SinceUpdate: now.Sub(st.UpdatedAt),
	}
}

// Report summarizes one monitor sweep.
type Report struct {
	CheckedAt time.Time        `json:"checked_at"`
	Total     int              `json:"total"`
	Stuck     []Classification `json:"stuck,omitempty"`
	Warning   []Classification `json:"warning,omitempty"`
	Critical  []Classification `json:"critical,omitempty"`
}
