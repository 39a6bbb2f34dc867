// Package engine assembles the orchestration stack from a storage
// backend: stream broker, publishing state store, per-tenant quotas,
// step executor, notification engine, orchestrator, and health monitor.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/agent"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/backoff"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/health"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/middleware"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/orchestrator"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/quota"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/state"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/stream"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Engine is the assembled orchestration stack.
type Engine struct {
	store        bidflow.Storer
	cfg          bidflow.Config
	logger       *slog.Logger
	broker       *stream.Broker
	states       *state.Store
	registry     *agent.Registry
	quota        *quota.Manager
	notifier     *notify.Engine
	orchestrator *orchestrator.Orchestrator
	monitor      *health.Monitor
}

type buildOptions struct {
	cfg        bidflow.Config
	logger     *slog.Logger
	agents     map[string]agent.Agent
	deliverers map[notify.Method]notify.Deliverer
	middleware []middleware.Middleware
	strategy   backoff.Strategy
}

// Option configures Build.
type Option func(*buildOptions)

// WithConfig overrides the default configuration.
func WithConfig(cfg bidflow.Config) Option {
	return func(o *buildOptions) { o.cfg = cfg }
}

// WithLogger sets the logger used across the stack.
func WithLogger(l *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithAgent registers a step agent for the given type.
func WithAgent(agentType string, a agent.Agent) Option {
	return func(o *buildOptions) { o.agents[agentType] = a }
}

// WithDeliverer binds a notification method to an implementation.
func WithDeliverer(m notify.Method, d notify.Deliverer) Option {
	return func(o *buildOptions) { o.deliverers[m] = d }
}

// WithMiddleware overrides the default step middleware chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *buildOptions) { o.middleware = mws }
}

// WithBackoff overrides the step retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *buildOptions) { o.strategy = s }
}

// Build wires an Engine around the given storage backend. The backend
// must implement the workflow state, checkpoint, and definition store
// contracts plus the notification rule store; the bundled memory,
// redis, and postgres stores all qualify.
func Build(store bidflow.Storer, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, bidflow.ErrNoStore
	}

	o := &buildOptions{
		cfg:        bidflow.DefaultConfig(),
		logger:     slog.Default(),
		agents:     make(map[string]agent.Agent),
		deliverers: make(map[notify.Method]notify.Deliverer),
	}
	for _, opt := range opts {
		opt(o)
	}

	stateStore, ok := store.(workflow.StateStore)
	if !ok {
		return nil, fmt.Errorf("%w: backend does not implement the state store", bidflow.ErrNoStore)
	}
	checkpointStore, ok := store.(workflow.CheckpointStore)
	if !ok {
		return nil, fmt.Errorf("%w: backend does not implement the checkpoint store", bidflow.ErrNoStore)
	}
	definitionStore, ok := store.(workflow.DefinitionStore)
	if !ok {
		return nil, fmt.Errorf("%w: backend does not implement the definition store", bidflow.ErrNoStore)
	}
	ruleStore, ok := store.(notify.RuleStore)
	if !ok {
		return nil, fmt.Errorf("%w: backend does not implement the rule store", bidflow.ErrNoStore)
	}

	broker := stream.NewBroker(o.logger)
	states := state.NewStore(stateStore, broker)

	registry := agent.NewRegistry()
	for agentType, a := range o.agents {
		registry.Register(agentType, a)
	}

	execOpts := []agent.ExecutorOption{agent.WithLogger(o.logger)}
	if o.strategy != nil {
		execOpts = append(execOpts, agent.WithBackoff(o.strategy))
	}
	if o.middleware != nil {
		execOpts = append(execOpts, agent.WithMiddleware(o.middleware...))
	}
	executor := agent.NewExecutor(registry, execOpts...)

	notifyOpts := []notify.EngineOption{
		notify.WithHistoryLimits(o.cfg.NotificationHistoryLimit, o.cfg.WorkflowHistoryLimit),
	}
	for m, d := range o.deliverers {
		notifyOpts = append(notifyOpts, notify.WithDeliverer(m, d))
	}
	notifier := notify.NewEngine(ruleStore, o.logger, notifyOpts...)

	qm := quota.NewManager(o.cfg.TenantConcurrency)
	orch := orchestrator.New(states, checkpointStore, definitionStore, executor, qm,
		orchestrator.WithLogger(o.logger),
		orchestrator.WithConfig(o.cfg),
		orchestrator.WithEmitter(&emitter{broker: broker, notifier: notifier}),
	)
	monitor := health.NewMonitor(states, notifier, o.logger, o.cfg)

	return &Engine{
		store:        store,
		cfg:          o.cfg,
		logger:       o.logger,
		broker:       broker,
		states:       states,
		registry:     registry,
		quota:        qm,
		notifier:     notifier,
		orchestrator: orch,
		monitor:      monitor,
	}, nil
}

// Start prepares storage, relaunches interrupted executions, and begins
// health monitoring.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("engine: migrate: %w", err)
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: ping: %w", err)
	}
	if _, err := e.orchestrator.ResumeAll(ctx); err != nil {
		return fmt.Errorf("engine: resume running workflows: %w", err)
	}
	e.monitor.Start(ctx)
	e.logger.InfoContext(ctx, "engine started")
	return nil
}

// Stop shuts the stack down in dependency order: scheduling loops
// first, then monitoring, streaming, and finally the store.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.orchestrator.Close()
	e.monitor.Stop()
	e.broker.Shutdown()
	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	e.logger.InfoContext(ctx, "engine stopped")
	return err
}

// Orchestrator returns the control surface.
func (e *Engine) Orchestrator() *orchestrator.Orchestrator { return e.orchestrator }

// States returns the publishing state store.
func (e *Engine) States() *state.Store { return e.states }

// Broker returns the stream broker.
func (e *Engine) Broker() *stream.Broker { return e.broker }

// Notifier returns the notification engine.
func (e *Engine) Notifier() *notify.Engine { return e.notifier }

// Rules returns the rule store backing the notification engine.
func (e *Engine) Rules() notify.RuleStore {
	return e.store.(notify.RuleStore) //nolint:errcheck // verified in Build
}

// Monitor returns the health monitor.
func (e *Engine) Monitor() *health.Monitor { return e.monitor }

// Agents returns the agent registry for late registration.
func (e *Engine) Agents() *agent.Registry { return e.registry }

// Quota returns the per-tenant limit manager.
func (e *Engine) Quota() *quota.Manager { return e.quota }

// Config returns the engine configuration.
func (e *Engine) Config() bidflow.Config { return e.cfg }
