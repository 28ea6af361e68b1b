// Package orchestrator drives a project's teams through a pipeline run.
//
// A run visits teams strictly in the project's declared order. For each
// team it builds an execution plan, dispatches the workers of one priority
// group at a time through the invocation layer, and appends every resolved
// output to a textual context that later workers and teams receive. Teams
// with a checkpoint pause until a human approves, edits, skips or denies
// their output.
//
// # Context
//
// Workers see the shared context (contributions of resolved teams) followed
// by the team-local context (outputs of earlier groups of the same team).
// A team's contribution joins the shared context only once the team
// resolves, after its checkpoint when one is enabled. Within a group,
// outputs are appended in the team's member order regardless of which
// worker finished first.
//
// # Failure and Cancellation
//
// A worker failure fails its team. With the fatal policy the run fails and
// the remaining teams are recorded as skipped; with the skip policy the run
// continues and the failed team's contribution is recorded as an explicit
// empty marker plus a warning.
//
// Cancellation is cooperative. It is observed at team boundaries, before
// each worker starts and during retry backoffs. In-flight backend calls are
// left to finish. Cancelling while a checkpoint is open resolves it as
// cancelled, which is recorded separately from a denial.
//
// # Capacity
//
// The estimated token size of the accumulated context is tracked against a
// ceiling. Warnings are emitted at 80%, 90% and 95%; going above the halt
// ratio stops the run with a CapacityExceeded error while completed teams
// stay persisted.
//
// # Basic Usage
//
//	orch, err := orchestrator.New(orchestrator.Config{
//	    Store:   st,
//	    Invoker: inv,
//	    Gate:    gate,
//	    Sink:    bus.Sink(),
//	})
//	exec, err := orch.Run(ctx, projectID, "Write a market brief")
package orchestrator
