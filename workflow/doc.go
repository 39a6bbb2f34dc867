// Package workflow defines the domain model of the orchestration engine:
// immutable workflow definitions (a DAG of agent-backed steps), per-execution
// state records with a strict status machine, durable checkpoints, and the
// persistence contracts the store backends implement.
//
// The orchestrator package is the sole mutator of State records; everything
// here is data and validation.
package workflow
