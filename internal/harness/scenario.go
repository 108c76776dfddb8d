package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/agreements/internal/config"
)

// Scenario defines a conformance test scenario: a population of accounts,
// a sequence of messages handled by the engine, and assertions on the
// replies and the final ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the default engine configuration. Same shape as the
	// config file.
	Config yaml.Node `yaml:"config,omitempty"`

	// Accounts exist before the first message, so they are never welcomed.
	Accounts []AccountSetup `yaml:"accounts,omitempty"`

	// Users are identities without an account yet.
	Users []UserSetup `yaml:"users,omitempty"`

	// Messages are posted in order. Mentions are handled by the engine;
	// posts only become visible as reply targets.
	Messages []MessageStep `yaml:"messages"`

	// Assertions validate the transcript and the final state.
	// Supported types: reply_contains, reply_order, reply_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// UserSetup is a network identity.
type UserSetup struct {
	ID        int64  `yaml:"id"`
	Handle    string `yaml:"handle"`
	Followers int64  `yaml:"followers"`
}

// AccountSetup is an identity with an opened account.
type AccountSetup struct {
	UserSetup  `yaml:",inline"`
	Balance    int64 `yaml:"balance"`
	Reputation int64 `yaml:"reputation"`
}

// MessageStep is one status on the network.
type MessageStep struct {
	ID int64 `yaml:"id"`

	// From is the author's handle, from accounts or users.
	From string `yaml:"from"`

	Text    string `yaml:"text"`
	ReplyTo int64  `yaml:"reply_to,omitempty"`

	// Mentions are handles mentioned after the engine.
	Mentions []string `yaml:"mentions,omitempty"`

	// Post marks a status that does not mention the engine.
	Post bool `yaml:"post,omitempty"`

	// Expect checks the replies emitted while handling this message.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the replies one message must produce.
type ExpectClause struct {
	// Replies are substrings; each must appear in a distinct reply, in order.
	Replies []string `yaml:"replies,omitempty"`

	// Silent requires that no reply is emitted.
	Silent bool `yaml:"silent,omitempty"`
}

// Assertion validates the transcript or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "reply_contains": some reply contains Text
	// - "reply_order": replies containing Texts appear in order
	// - "reply_count": exactly Count replies contain Text
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Text is a reply substring (reply_contains, reply_count).
	Text string `yaml:"text,omitempty"`

	// Texts is the expected reply order (reply_order).
	Texts []string `yaml:"texts,omitempty"`

	// Count is the expected number of matching replies (reply_count).
	Count int `yaml:"count,omitempty"`

	// Table is the table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertReplyContains = "reply_contains"
	AssertReplyOrder    = "reply_order"
	AssertReplyCount    = "reply_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// EngineConfig returns the default configuration with the scenario's
// overrides applied.
func (s *Scenario) EngineConfig() (config.Config, error) {
	if s.Config.Kind == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(&s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config overrides: %w", err)
	}
	return config.Parse(data)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Messages) == 0 {
		return fmt.Errorf("messages list is required and must be non-empty")
	}

	if _, err := s.EngineConfig(); err != nil {
		return err
	}

	handles := make(map[string]bool)
	ids := make(map[int64]bool)
	addUser := func(kind string, i int, u UserSetup) error {
		if u.ID <= 0 || u.Handle == "" {
			return fmt.Errorf("%s[%d]: id and handle are required", kind, i)
		}
		if handles[u.Handle] || ids[u.ID] {
			return fmt.Errorf("%s[%d]: duplicate user %d @%s", kind, i, u.ID, u.Handle)
		}
		handles[u.Handle], ids[u.ID] = true, true
		return nil
	}
	for i, a := range s.Accounts {
		if err := addUser("accounts", i, a.UserSetup); err != nil {
			return err
		}
	}
	for i, u := range s.Users {
		if err := addUser("users", i, u); err != nil {
			return err
		}
	}

	seen := make(map[int64]bool)
	for i, m := range s.Messages {
		if m.ID <= 0 {
			return fmt.Errorf("messages[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("messages[%d]: duplicate message id %d", i, m.ID)
		}
		seen[m.ID] = true
		if !handles[m.From] {
			return fmt.Errorf("messages[%d]: unknown author %q", i, m.From)
		}
		for _, h := range m.Mentions {
			if !handles[h] {
				return fmt.Errorf("messages[%d]: unknown mention %q", i, h)
			}
		}
		if m.Post && m.Expect != nil {
			return fmt.Errorf("messages[%d]: posts are not handled and cannot expect replies", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReplyContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for reply_contains", index)
		}
	case AssertReplyOrder:
		if len(a.Texts) == 0 {
			return fmt.Errorf("assertions[%d]: texts list is required for reply_order", index)
		}
	case AssertReplyCount:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for reply_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for reply_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
