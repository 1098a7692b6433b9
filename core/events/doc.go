// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - CommitEvent: a schedule batch was committed to the live state
//   - TriggerEvent: a disruption trigger entered the reoptimization queue
//   - SolveEvent: optimizer strategy selection and fallback information
//   - ConflictEvent: conflicts detected or closed
package events
