package command

import (
	"strconv"

	"github.com/roach88/agreements/internal/ir"
)

// Keywords recognised in mention text.
const (
	KeywordGenerate   = "generate"
	KeywordExecute    = "execute"
	KeywordBalance    = "balance"
	KeywordReputation = "reputation"
	KeywordLikes      = "likes"
	KeywordRetweets   = "retweets"
	KeywordSend       = "send"
	KeywordAgreement  = "agreement"
	KeywordUpheld     = "upheld"
	KeywordBroken     = "broken"
)

var keywords = map[string]bool{
	KeywordGenerate:   true,
	KeywordExecute:    true,
	KeywordBalance:    true,
	KeywordReputation: true,
	KeywordLikes:      true,
	KeywordRetweets:   true,
	KeywordSend:       true,
	KeywordAgreement:  true,
	KeywordUpheld:     true,
	KeywordBroken:     true,
}

// Command is one of the closed set of command variants.
type Command interface {
	// Keyword returns the word that selected this variant.
	Keyword() string
	sealed()
}

// Generate asks the contract pool for a new contract.
type Generate struct {
	Size int64
	Type ir.ContractType
}

// Execute spends Budget calling in contracts on the replied-to message.
type Execute struct {
	Budget int64
}

// Send transfers Amount to the first other mentioned user.
type Send struct {
	Amount int64
}

// Agreement opens an escrow agreement with the first other mentioned user.
type Agreement struct {
	Size int64
	Type ir.CollateralType
}

// Vote records a ruling on the replied-to agreement.
type Vote struct {
	Ruling ir.Ruling
}

// Query asks for one of the account read-outs.
type Query struct {
	Word string // balance, reputation, likes or retweets
}

// Invalid is a recognised keyword whose argument could not be used.
// Invalid commands are logged and not answered.
type Invalid struct {
	Word   string
	Reason string
}

func (Generate) Keyword() string  { return KeywordGenerate }
func (Execute) Keyword() string   { return KeywordExecute }
func (Send) Keyword() string      { return KeywordSend }
func (Agreement) Keyword() string { return KeywordAgreement }
func (v Vote) Keyword() string    { return string(v.Ruling) }
func (q Query) Keyword() string   { return q.Word }
func (i Invalid) Keyword() string { return i.Word }

func (Generate) sealed()  {}
func (Execute) sealed()   {}
func (Send) sealed()      {}
func (Agreement) sealed() {}
func (Vote) sealed()      {}
func (Query) sealed()     {}
func (Invalid) sealed()   {}

// Parse resolves text to a command.
//
// The first token that is a keyword selects the variant; later keywords are
// ignored. Returns false when the text contains no keyword.
func Parse(text string) (Command, bool) {
	tokens := Tokenize(text)

	for i, tok := range tokens {
		if !keywords[tok] {
			continue
		}
		switch tok {
		case KeywordGenerate:
			req := Interpret(KindContract, KeywordGenerate, text)
			return Generate{Size: req.Size, Type: ir.ContractType(req.Type)}, true

		case KeywordAgreement:
			req := Interpret(KindAgreement, KeywordAgreement, text)
			return Agreement{Size: req.Size, Type: ir.CollateralType(req.Type)}, true

		case KeywordExecute:
			n, reason := amountAfter(tokens, i)
			if reason != "" {
				return Invalid{Word: tok, Reason: reason}, true
			}
			return Execute{Budget: n}, true

		case KeywordSend:
			n, reason := amountAfter(tokens, i)
			if reason != "" {
				return Invalid{Word: tok, Reason: reason}, true
			}
			return Send{Amount: n}, true

		case KeywordUpheld:
			return Vote{Ruling: ir.RulingUpheld}, true

		case KeywordBroken:
			return Vote{Ruling: ir.RulingBroken}, true

		default:
			return Query{Word: tok}, true
		}
	}

	return nil, false
}

// amountAfter reads the positive integer following tokens[i].
func amountAfter(tokens []string, i int) (int64, string) {
	if i+1 >= len(tokens) {
		return 0, "missing amount"
	}
	n, err := strconv.ParseInt(tokens[i+1], 10, 64)
	if err != nil {
		return 0, "amount is not an integer: " + strconv.Quote(tokens[i+1])
	}
	if n <= 0 {
		return 0, "amount must be positive"
	}
	return n, ""
}
