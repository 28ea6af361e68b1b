// Package event provides the progress events emitted by a workcrew run and a
// synchronous pub-sub bus to deliver them.
//
// Core components receive a [Sink] and only ever emit through it. The CLI,
// metrics and log subscribers attach to a [Bus] whose Publish method is the
// sink handed to the orchestrator.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Sink]: Emit-only progress callback
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Execution lifecycle:
//   - [ExecutionStartedEvent], [ExecutionCompletedEvent], [ExecutionFailedEvent]
//   - [ExecutionCancelledEvent], [ExecutionPausedEvent]
//
// Teams:
//   - [TeamStartedEvent], [TeamCompletedEvent], [TeamFailedEvent], [TeamSkippedEvent]
//
// Workers:
//   - [WorkerStartedEvent], [WorkerAttemptEvent], [WorkerCompletedEvent]
//
// Checkpoints:
//   - [CheckpointRequiredEvent], [CheckpointResolvedEvent], [CheckpointTimeoutEvent]
//
// Capacity:
//   - [CapacityWarningEvent]
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously and protected against panics; a panicking handler will not
// prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeCheckpointRequired, func(e event.Event) {
//	    cp := e.(event.CheckpointRequiredEvent)
//	    fmt.Println("review team", cp.TeamID)
//	})
//
//	orch := orchestrator.New(orchestrator.Config{Sink: bus.Sink(), ...})
package event
