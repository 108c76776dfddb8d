// Package command turns the free text of a mention into a typed command.
//
// Interpretation happens once, at the boundary. The result is one variant
// of a closed set (Generate, Execute, Send, Agreement, Vote and the query
// commands) carrying its already-validated payload, so the dispatcher can
// match exhaustively without re-reading the text.
//
// # Argument automaton
//
// Creation commands (generate, agreement) read their arguments with a
// three-state automaton over whitespace-delimited tokens:
//
//	find_command -> find_size -> find_type
//
// The automaton is greedy and order-sensitive, stops at the first type
// token and never backtracks. It never fails: a missing or unusable token
// falls through to the documented default for the command kind.
package command
