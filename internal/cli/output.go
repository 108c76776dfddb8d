package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/agreements/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Command did what was asked
	ExitFailure      = 1 // Scenario failed, replay diverged, record not found
	ExitCommandError = 2 // Bad arguments, unreadable config, database errors
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error // Optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results either as a JSON envelope or as
// text. Ledger records get an aligned field listing in text mode; any
// other value is printed with its String method.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostics, kept off Writer so JSON output stays parseable
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of the envelope.
type CLIError struct {
	Code    string `json:"code"` // E404 for missing records
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes a result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}

	if fields, ok := recordFields(data); ok {
		return writeFields(f.Writer, fields)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. Details are shown in text mode only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Debugf writes a diagnostic line to ErrWriter when --verbose is set.
func (f *OutputFormatter) Debugf(format string, args ...any) {
	if !f.Verbose || f.ErrWriter == nil {
		return
	}
	fmt.Fprintf(f.ErrWriter, format+"\n", args...)
}

type field struct {
	name  string
	value string
}

// recordFields lists the text rendering of a ledger record.
func recordFields(v any) ([]field, bool) {
	switch r := v.(type) {
	case ir.Account:
		return []field{
			{"account", handleOf(r.ID, r.Handle)},
			{"name", r.Name},
			{"balance", tsc(r.Balance)},
			{"reputation", strconv.FormatInt(r.Reputation, 10)},
			{"contracts", ids(r.Contracts)},
			{"liked", ids(r.Likes)},
			{"retweeted", ids(r.Retweets)},
		}, true

	case ir.Contract:
		state := string(r.State)
		if r.Revived {
			state += " (revived)"
		}
		return []field{
			{"contract", strconv.FormatInt(r.ID, 10)},
			{"owner", handleOf(r.OwnerID, r.OwnerHandle)},
			{"state", state},
			{"type", string(r.Type)},
			{"count", strconv.FormatInt(r.Count, 10)},
			{"price", tsc(r.Price)},
			{"value", tsc(r.Value())},
			{"created", timestamp(r.CreatedAt)},
			{"executed on", ids(r.ExecutedOn)},
		}, true

	case ir.Agreement:
		collateral := "none"
		switch r.CollateralType {
		case ir.CollateralCurrency:
			collateral = tsc(r.Collateral)
		case ir.CollateralLike, ir.CollateralRetweet:
			collateral = fmt.Sprintf("%d %s", r.Collateral, r.CollateralType)
		}
		return []field{
			{"agreement", strconv.FormatInt(r.ID, 10)},
			{"state", string(r.State)},
			{"creator", handleOf(r.CreatorID, r.CreatorHandle) + " " + ruling(r.CreatorRuling)},
			{"member", handleOf(r.MemberID, r.MemberHandle) + " " + ruling(r.MemberRuling)},
			{"consensus", string(r.Consensus())},
			{"collateral", collateral},
			{"created", timestamp(r.CreatedAt)},
			{"text", r.Text},
		}, true

	case ir.Execution:
		return []field{
			{"execution", strconv.FormatInt(r.ID, 10)},
			{"requester", strconv.FormatInt(r.RequesterID, 10)},
			{"spent", fmt.Sprintf("%d of %d TSC", r.Spent, r.Budget)},
			{"promises", ids(r.Promises)},
			{"created", timestamp(r.CreatedAt)},
			{"expires", timestamp(r.ExpiresAt)},
		}, true

	case ir.Counters:
		return []field{
			{"accounts", strconv.FormatInt(r.Accounts, 10)},
			{"contracts", strconv.FormatInt(r.Contracts, 10)},
			{"agreements", strconv.FormatInt(r.Agreements, 10)},
			{"executions", strconv.FormatInt(r.Executions, 10)},
		}, true
	}
	return nil, false
}

func writeFields(w io.Writer, fields []field) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", f.name, f.value)
	}
	return tw.Flush()
}

func handleOf(id int64, handle string) string {
	if handle == "" {
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%d @%s", id, handle)
}

func tsc(n int64) string {
	return strconv.FormatInt(n, 10) + " TSC"
}

func ruling(r ir.Ruling) string {
	if r == ir.RulingUnset {
		return "(no ruling)"
	}
	return "(" + string(r) + ")"
}

func ids(list []int64) string {
	if len(list) == 0 {
		return "-"
	}
	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
