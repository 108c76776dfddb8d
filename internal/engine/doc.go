// Package engine turns inbound mentions into ledger, pool and agreement
// operations and answers them through the messaging gateway.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The poller enqueues mentions in ascending id order. Engine.Run dequeues
// them one at a time, so commands are applied in the order they were
// posted. Handle may also be called directly (CLI invoke, replay, tests);
// the components below it are safe for concurrent callers because every
// mutation is scoped to one entity.
//
// Message Handling:
//  1. Archive the status; an already archived id is a redelivery and is skipped
//  2. Ensure the author has an account (new accounts are welcomed)
//  3. Resolve the text to one command variant
//  4. Dispatch with a single type switch
//  5. Emit the reply, salted with the id it answers
//
// Gateway failures on replies are classified and dropped. Store failures
// are returned as *RuntimeError and logged by Run.
package engine
