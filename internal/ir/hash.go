package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainState is the digest domain for ledger snapshots.
// The version suffix enables future algorithm migration.
const DomainState = "agreements/state/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest hashes a canonical snapshot of the ledger.
//
// Two stores that processed the same messages in the same order produce the
// same digest, which is what replay verification compares.
func StateDigest(accounts []Account, contracts []Contract, agreements []Agreement, counters Counters) (string, error) {
	accs := make([]any, len(accounts))
	for i, a := range accounts {
		accs[i] = map[string]any{
			"id":         a.ID,
			"balance":    a.Balance,
			"reputation": a.Reputation,
			"contracts":  a.Contracts,
			"likes":      a.Likes,
			"retweets":   a.Retweets,
		}
	}
	cons := make([]any, len(contracts))
	for i, c := range contracts {
		cons[i] = map[string]any{
			"id":          c.ID,
			"state":       string(c.State),
			"owner_id":    c.OwnerID,
			"type":        string(c.Type),
			"count":       c.Count,
			"price":       c.Price,
			"executed_on": c.ExecutedOn,
		}
	}
	agrs := make([]any, len(agreements))
	for i, a := range agreements {
		agrs[i] = map[string]any{
			"id":              a.ID,
			"state":           string(a.State),
			"creator_ruling":  string(a.CreatorRuling),
			"member_ruling":   string(a.MemberRuling),
			"collateral_type": string(a.CollateralType),
			"collateral":      a.Collateral,
		}
	}
	snapshot := map[string]any{
		"schema_version": SchemaVersion,
		"accounts":       accs,
		"contracts":      cons,
		"agreements":     agrs,
		"counters": map[string]any{
			"accounts":   counters.Accounts,
			"contracts":  counters.Contracts,
			"agreements": counters.Agreements,
			"executions": counters.Executions,
		},
	}

	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
