package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Monitor periodically sweeps active executions and raises timeout
// notifications for stuck or overdue workflows. It never changes an
// execution's status.
type Monitor struct {
	states   workflow.StateStore
	notifier *notify.Engine
	logger   *slog.Logger
	cfg      bidflow.Config

	mu     sync.Mutex
	last   *Report
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor returns a Monitor over the given state store. notifier may
// be nil to disable notifications.
func NewMonitor(states workflow.StateStore, notifier *notify.Engine, logger *slog.Logger, cfg bidflow.Config) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		states:   states,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches the periodic sweep. It returns immediately; the first
// sweep runs after one interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Sweep classifies every active execution once and returns the report.
func (m *Monitor) Sweep(ctx context.Context) *Report {
	states, err := m.states.ListActiveStates(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "health sweep failed", "error", err)
		return nil
	}

	now := time.Now().UTC()
	report := &Report{CheckedAt: now, Total: len(states)}
	for _, st := range states {
		c := Classify(st, now, m.cfg.StuckThreshold, m.cfg.TimeoutThreshold, m.cfg.WarningRatio)
		if c.Stuck {
			report.Stuck = append(report.Stuck, c)
		}
		switch c.Level {
		case LevelWarning:
			report.Warning = append(report.Warning, c)
		case LevelCritical:
			report.Critical = append(report.Critical, c)
		}
		if m.notifier != nil && (c.Stuck || c.Level == LevelCritical) {
			m.notifier.Notify(ctx, &notify.Event{
				Type:         notify.EventTimeout,
				TenantID:     st.TenantID,
				ExecutionID:  st.ID.String(),
				DefinitionID: st.DefinitionID.String(),
				Status:       string(st.Status),
				Message:      "execution exceeded its expected runtime",
				Data: map[string]any{
					"level":        string(c.Level),
					"stuck":        c.Stuck,
					"age_seconds":  int64(c.Age.Seconds()),
					"idle_seconds": int64(c.SinceUpdate.Seconds()),
				},
			})
		}
	}

	if len(report.Stuck) > 0 || len(report.Critical) > 0 {
		m.logger.WarnContext(ctx, "health sweep found unhealthy executions",
			"total", report.Total,
			"stuck", len(report.Stuck),
			"warning", len(report.Warning),
			"critical", len(report.Critical),
		)
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report
}

// LastReport returns the most recent sweep result, or nil before the
// first sweep.
func (m *Monitor) LastReport() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
