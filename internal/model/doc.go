// Package model defines the persistent domain types shared by the store,
// the task graph builder and the orchestrator.
//
// # Hierarchy
//
// A [Project] owns an ordered list of [Team] values. Each team owns an ordered
// list of [TeamMember] assignments. Runs of a project are recorded as a
// [ProjectExecution] with one [TeamExecution] per team visited, one
// [WorkerExecution] per worker dispatched and an optional [Checkpoint] per
// gated team.
//
// # Status Machines
//
// Execution statuses only move forward. The allowed transitions are encoded in
// [ExecutionStatus.CanTransition], [TeamStatus.CanTransition] and
// [CheckpointStatus.CanTransition]. The store checks execution and team
// records against them on every save and rejects changes to terminal
// records; the checkpoint gate does the same for checkpoints.
package model
