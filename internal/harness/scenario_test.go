package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: test_scenario
description: "Test scenario for validation"
accounts:
  - {id: 2, handle: alice, followers: 5, balance: 10}
messages:
  - id: 10
    from: alice
    text: "@AgreementEngine balance"
    expect:
      replies: ["10 TSC"]
assertions:
  - type: reply_contains
    text: "10 TSC"
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Accounts, 1)
	assert.Equal(t, int64(2), scenario.Accounts[0].ID)
	assert.Equal(t, "alice", scenario.Accounts[0].Handle)
	assert.Equal(t, int64(10), scenario.Accounts[0].Balance)
	require.Len(t, scenario.Messages, 1)
	assert.Equal(t, []string{"10 TSC"}, scenario.Messages[0].Expect.Replies)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nmessages: [{id: 1, from: a, text: x}]\naccounts: [{id: 2, handle: a}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nmessages: [{id: 1, from: a, text: x}]\naccounts: [{id: 2, handle: a}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no messages",
			content: "name: n\ndescription: d\n",
			wantErr: "messages list is required",
		},
		{
			name:    "unknown author",
			content: "name: n\ndescription: d\nmessages: [{id: 1, from: zed, text: x}]\n",
			wantErr: `unknown author "zed"`,
		},
		{
			name:    "unknown mention",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x, mentions: [zed]}]\n",
			wantErr: `unknown mention "zed"`,
		},
		{
			name:    "duplicate message id",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x}, {id: 1, from: a, text: y}]\n",
			wantErr: "duplicate message id 1",
		},
		{
			name:    "duplicate user",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nusers: [{id: 3, handle: a}]\nmessages: [{id: 1, from: a, text: x}]\n",
			wantErr: "duplicate user",
		},
		{
			name:    "post with expect",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x, post: true, expect: {silent: true}}]\n",
			wantErr: "posts are not handled",
		},
		{
			name:    "bad config override",
			content: "name: n\ndescription: d\nconfig: {tax_rate: 2}\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x}]\n",
			wantErr: "invalid config",
		},
		{
			name:    "unknown assertion type",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "reply_order without texts",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x}]\nassertions: [{type: reply_order}]\n",
			wantErr: "texts list is required",
		},
		{
			name:    "final_state without expect",
			content: "name: n\ndescription: d\naccounts: [{id: 2, handle: a}]\nmessages: [{id: 1, from: a, text: x}]\nassertions: [{type: final_state, table: accounts}]\n",
			wantErr: "expect is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenario_EngineConfig(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario + "config:\n  tax_rate: 0.25\n  contracts:\n    like: {value: 2, limit: 7}\n"))
	require.NoError(t, err)

	cfg, err := scenario.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.TaxRate)
	assert.Equal(t, int64(2), cfg.Contracts.Like.Value)
	assert.Equal(t, int64(7), cfg.Contracts.Like.Limit)
	// Untouched sections keep their defaults.
	assert.Equal(t, int64(5), cfg.Contracts.Retweet.Value)
	assert.Equal(t, "AgreementEngine", cfg.Engine.Handle)
}

func TestScenario_EngineConfigDefault(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	cfg, err := scenario.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.TaxRate)
}
