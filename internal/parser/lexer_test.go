package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexer_BareParamsNumberedSequentially(t *testing.T) {
	r := require.New(t)

	l := NewLexer("? ? ?")
	first := l.NextToken()
	second := l.NextToken()
	third := l.NextToken()

	r.Equal(TokParam, first.Kind)
	r.Equal("?1", first.Text)
	r.Equal("?2", second.Text)
	r.Equal("?3", third.Text)
}

func TestLexer_NamedParamKeepsItsName(t *testing.T) {
	r := require.New(t)

	l := NewLexer(":foo")
	tok := l.NextToken()
	r.Equal(TokParam, tok.Kind)
	r.Equal(":foo", tok.Text)
}

func TestLexer_StringLiteralUnescapesDoubledQuotes(t *testing.T) {
	r := require.New(t)

	l := NewLexer("'it''s here'")
	tok := l.NextToken()
	r.Equal(TokString, tok.Kind)
	r.Equal("it's here", tok.Text)
}

func TestLexer_KeywordsAreCaseInsensitive(t *testing.T) {
	r := require.New(t)

	l := NewLexer("select")
	tok := l.NextToken()
	r.Equal(TokSelect, tok.Kind)
}

func TestLexer_CommentsAreSkipped(t *testing.T) {
	r := require.New(t)

	l := NewLexer("-- a comment\nSELECT")
	tok := l.NextToken()
	r.Equal(TokSelect, tok.Kind)
}
