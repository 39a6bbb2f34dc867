// Package bidflow is the workflow orchestration and recovery engine of the
// bid-assistant platform. It executes dependency graphs of agent-backed
// steps per tenant with bounded concurrency, maintains a strict execution
// state machine (pause/resume/cancel/restart/recover), persists recoverable
// checkpoints, and watches running executions for stuck and timed-out
// conditions.
//
// Bidflow is designed as a library, not a service. Configure a store,
// provide an agent capability, and drive executions through the
// orchestrator:
//
//	eng, err := engine.Build(memory.New(),
//	    engine.WithAgent(myAgent),
//	)
//
// # Architecture
//
// Bidflow follows a composable store pattern where each subsystem
// (workflow state, checkpoints, definitions, notification rules) defines
// its own store interface. A single backend implements all of them; the
// memory, redis, and postgres backends ship in store/.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
//
// Every operation is tenant-scoped: the caller identity travels in the
// context (package scope) and cross-tenant access fails with
// ErrAccessDenied rather than ErrNotFound.
package bidflow
