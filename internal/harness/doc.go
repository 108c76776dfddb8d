// Package harness provides conformance testing for the agreement engine.
//
// A scenario seeds accounts, posts a sequence of messages to an in-memory
// network, lets the engine handle every mention, and validates the replies
// and the final ledger.
//
// # Scenario Format
//
//	name: contract_market
//	description: "What this scenario validates"
//	config:
//	  tax_rate: 0.1
//	accounts:
//	  - {id: 2, handle: alice, followers: 5, balance: 0}
//	users:
//	  - {id: 5, handle: dave, followers: 0}
//	messages:
//	  - id: 10
//	    from: alice
//	    text: "@AgreementEngine generate 3 like"
//	    expect:
//	      replies: ["Successfully generated!"]
//	  - id: 90
//	    from: carol
//	    text: "a post to promote"
//	    post: true
//	assertions:
//	  - type: reply_contains
//	    text: "Executed 1 contracts"
//	  - type: final_state
//	    table: accounts
//	    where: {id: 2}
//	    expect: {balance: 13}
//
// # Assertion Types
//
//   - reply_contains: some reply contains the text
//   - reply_order: replies containing the texts appear in order
//   - reply_count: exactly N replies contain the text
//   - final_state: queries a table and verifies expected values
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite database with a
// deterministic clock and sequential trace ids. Snapshot renders the
// transcript and final ledger as canonical JSON lines for golden file
// comparison.
package harness
