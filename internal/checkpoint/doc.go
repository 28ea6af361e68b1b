// Package checkpoint implements the human-approval gate between teams.
//
// When a team with checkpoints enabled finishes, the orchestrator opens a
// gate holding the team's frozen output plus an editable working copy, then
// blocks in [Gate.Wait] until a reviewer resolves it. A gate moves exactly
// once from pending to one of approved, denied, edited, skipped or
// cancelled.
//
// # Resolutions
//
//   - Approve: the original output flows downstream unchanged.
//   - Deny: nothing flows downstream; a non-empty reason is required.
//   - Edit: the replacement text flows downstream instead of the original.
//   - Skip: behaves like Approve but is recorded distinctly.
//   - Cancel: the run was cancelled while the gate was open.
//
// # Timeout Policy
//
// A [Policy] with a positive Timeout applies OnTimeout when the window
// elapses. The default action, notify, emits a checkpoint.timeout event every
// window and keeps waiting; the gate never auto-approves unless configured to.
//
// # Thread Safety
//
// All Gate methods are safe for concurrent use. Events are published outside
// the internal lock so handlers may call back into the gate.
package checkpoint
