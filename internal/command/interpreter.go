package command

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/agreements/internal/ir"
)

// Kind selects the defaults the automaton applies.
type Kind string

const (
	KindContract  Kind = "contract"
	KindAgreement Kind = "agreement"
)

// DefaultContractSize is used when a generate command names no size.
const DefaultContractSize = 10

// Request is the structured result of the argument automaton.
type Request struct {
	Kind Kind
	Size int64
	// Type is the canonical type token: "like" or "retweet" for contracts,
	// "TSC", "like", "retweet" or "none" for agreements.
	Type string
}

type state int

const (
	findCommand state = iota
	findSize
	findType
)

// Tokenize splits text on whitespace after NFKC normalization and lower-casing.
// NFKC folds full-width digits and letters onto their ASCII forms.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(norm.NFKC.String(text)))
}

// Interpret runs the argument automaton for kind over text.
// keyword is the command word that moves the automaton out of find_command.
func Interpret(kind Kind, keyword, text string) Request {
	req := Request{Kind: kind}
	st := findCommand

	for _, tok := range Tokenize(text) {
		switch st {
		case findCommand:
			if tok == keyword {
				st = findSize
			}

		case findSize:
			n, ok := numeric(tok)
			if !ok {
				return sizeDefault(req)
			}
			req.Size = n
			st = findType

		case findType:
			req.Type = typeToken(kind, tok)
			return req
		}
	}

	// Text ran out before the automaton stopped.
	switch st {
	case findSize:
		return sizeDefault(req)
	case findType:
		req.Type = typeToken(kind, "")
	}
	return req
}

// sizeDefault applies the kind default for a missing size.
func sizeDefault(req Request) Request {
	switch req.Kind {
	case KindContract:
		req.Size = DefaultContractSize
		req.Type = string(ir.ContractLike)
	case KindAgreement:
		req.Size = 0
		req.Type = string(ir.CollateralNone)
	}
	return req
}

// typeToken maps a token onto the canonical type for kind.
func typeToken(kind Kind, tok string) string {
	switch tok {
	case "like", "likes":
		return string(ir.ContractLike)
	case "retweet", "retweets":
		return string(ir.ContractRetweet)
	}
	if kind == KindAgreement {
		return string(ir.CollateralCurrency)
	}
	return string(ir.ContractLike)
}

// numeric reports whether tok is a non-negative decimal integer that fits
// in an int64.
func numeric(tok string) (int64, bool) {
	if tok == "" {
		return 0, false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
