// Package ir provides the record types shared by every layer of the
// agreement engine.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Entity identity is the id of the message that created it
//   - Currency amounts are int64 TSC, never floats
//   - All JSON tags use snake_case
//   - Domain outcomes are Outcome codes, not Go errors
package ir
