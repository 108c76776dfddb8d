// Package store provides SQLite-backed durable storage for the agreement engine.
//
// The store holds one table per record collection:
//   - Accounts: balances, reputation, owned contracts and consumed messages
//   - Contracts: priced pledges with their execution log
//   - Agreements: escrow commitments and the rulings of both parties
//   - Executions: batches of contracts called in on one message
//   - Statuses: archive of every processed inbound message
//
// plus the global counters and a small key/value meta table (for example
// the id of the last ingested message).
//
// # Named Operations
//
// Every mutation is a named operation that runs in one transaction and is
// scoped to one entity id. Guards live in the SQL itself:
//   - Debit only succeeds while balance >= amount
//   - ExecuteContract only succeeds on an alive contract with count > 0,
//     and the consumed PRIMARY KEY rejects a second action by the same
//     owner on the same message
//   - CloseAgreement only succeeds on an open agreement, and settles it
//     in the same transaction; a collateral contract is revived at most once
//
// Counter increments happen in the same transaction as the insert they count.
//
// # Deterministic Reads
//
// All list queries carry an explicit ORDER BY. Contracts are always listed
// in ascending id order, which is creation order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
