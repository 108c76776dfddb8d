package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/store"
)

// toCanonicalMap converts a transcript entry for canonical JSON
// serialization. Zero ids are omitted.
func (e Entry) toCanonicalMap() map[string]any {
	m := map[string]any{
		"type": e.Type,
		"text": e.Text,
	}
	if e.ID != 0 {
		m["id"] = e.ID
	}
	if e.From != "" {
		m["from"] = e.From
	}
	if e.ReplyTo != 0 {
		m["reply_to"] = e.ReplyTo
	}
	return m
}

// dumpState renders the final ledger as canonical JSON lines: accounts,
// then contracts, then agreements, each ordered by id. Timestamps are left
// out so the dump only depends on the messages handled.
func dumpState(ctx context.Context, st *store.Store) ([]string, error) {
	accounts, contracts, agreements, _, err := st.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, a := range accounts {
		rows = append(rows, map[string]any{
			"type":       "account",
			"id":         a.ID,
			"handle":     a.Handle,
			"balance":    a.Balance,
			"reputation": a.Reputation,
		})
	}
	for _, c := range contracts {
		rows = append(rows, map[string]any{
			"type":          "contract",
			"id":            c.ID,
			"owner":         c.OwnerHandle,
			"contract_type": string(c.Type),
			"state":         string(c.State),
			"count":         c.Count,
			"price":         c.Price,
		})
	}
	for _, g := range agreements {
		rows = append(rows, map[string]any{
			"type":            "agreement",
			"id":              g.ID,
			"state":           string(g.State),
			"creator":         g.CreatorHandle,
			"creator_ruling":  string(g.CreatorRuling),
			"member":          g.MemberHandle,
			"member_ruling":   string(g.MemberRuling),
			"collateral_type": string(g.CollateralType),
			"collateral":      g.Collateral,
		})
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		b, err := ir.MarshalCanonical(row)
		if err != nil {
			return nil, err
		}
		lines = append(lines, string(b))
	}
	return lines, nil
}

// Snapshot renders a result as canonical JSON lines: the transcript
// followed by the final state.
func Snapshot(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range result.Transcript {
		b, err := ir.MarshalCanonical(e.toCanonicalMap())
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	for _, line := range result.State {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
