package harness

// Transcript entry types.
const (
	EntryMention = "mention"
	EntryPost    = "post"
	EntryReply   = "reply"
)

// Entry is one line of a scenario transcript: a status posted by a user
// or a reply emitted by the engine.
type Entry struct {
	Type    string `json:"type"`
	ID      int64  `json:"id,omitempty"`   // Status id (mention, post)
	From    string `json:"from,omitempty"` // Author handle (mention, post)
	Text    string `json:"text"`
	ReplyTo int64  `json:"reply_to,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Transcript contains every status and reply in order.
	Transcript []Entry `json:"transcript"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the canonical dump of the final ledger, one line per
	// account, contract and agreement.
	State []string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []Entry{},
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Replies returns the reply entries in order.
func (r *Result) Replies() []Entry {
	var replies []Entry
	for _, e := range r.Transcript {
		if e.Type == EntryReply {
			replies = append(replies, e)
		}
	}
	return replies
}
