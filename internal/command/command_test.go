package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
)

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"@engine generate 5 like", Generate{Size: 5, Type: ir.ContractLike}},
		{"@engine execute 30", Execute{Budget: 30}},
		{"@engine balance", Query{Word: KeywordBalance}},
		{"@engine what is my reputation", Query{Word: KeywordReputation}},
		{"@engine likes", Query{Word: KeywordLikes}},
		{"@engine retweets", Query{Word: KeywordRetweets}},
		{"@engine send 20 @bob", Send{Amount: 20}},
		{"@engine @bob agreement 50", Agreement{Size: 50, Type: ir.CollateralCurrency}},
		{"@engine @bob agreement 3 retweets", Agreement{Size: 3, Type: ir.CollateralRetweet}},
		{"@engine upheld", Vote{Ruling: ir.RulingUpheld}},
		{"@engine Broken", Vote{Ruling: ir.RulingBroken}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Parse(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_FirstKeywordWins(t *testing.T) {
	got, ok := Parse("@engine balance then generate 5 like")
	require.True(t, ok)
	assert.Equal(t, Query{Word: KeywordBalance}, got)

	got, ok = Parse("@engine generate 5 likes")
	require.True(t, ok)
	assert.Equal(t, Generate{Size: 5, Type: ir.ContractLike}, got)
}

func TestParse_NoKeyword(t *testing.T) {
	got, ok := Parse("@engine hello there")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestParse_InvalidAmounts(t *testing.T) {
	tests := []struct {
		text string
		word string
	}{
		{"@engine execute", KeywordExecute},
		{"@engine execute lots", KeywordExecute},
		{"@engine execute 0", KeywordExecute},
		{"@engine send -5 @bob", KeywordSend},
		{"@engine send @bob", KeywordSend},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Parse(tt.text)
			require.True(t, ok)
			inv, isInvalid := got.(Invalid)
			require.True(t, isInvalid, "got %T", got)
			assert.Equal(t, tt.word, inv.Keyword())
			assert.NotEmpty(t, inv.Reason)
		})
	}
}

func TestCommand_Keyword(t *testing.T) {
	assert.Equal(t, "generate", Generate{}.Keyword())
	assert.Equal(t, "upheld", Vote{Ruling: ir.RulingUpheld}.Keyword())
	assert.Equal(t, "likes", Query{Word: KeywordLikes}.Keyword())
}
