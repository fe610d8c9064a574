package scanner_test

import (
	"testing"

	"github.com/corolox/corolox/lang/scanner"
	"github.com/corolox/corolox/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []scanner.Token {
	t.Helper()
	s := scanner.New(src)
	var toks []scanner.Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF || tok.Type == token.ILLEGAL {
			break
		}
	}
	return toks
}

func TestScanBasicTokens(t *testing.T) {
	toks := scanAll(t, `var a = 1 + 2 * 3; // trailing comment
print(a);`)

	require.NotEmpty(t, toks)
	var kinds []token.Token
	for _, tok := range toks {
		kinds = append(kinds, tok.Type)
	}
	assert.Equal(t, []token.Token{
		token.VAR, token.IDENT, token.EQ, token.NUMBER, token.PLUS, token.NUMBER,
		token.STAR, token.NUMBER, token.SEMICOLON,
		token.IDENT, token.LPAREN, token.IDENT, token.RPAREN, token.SEMICOLON,
		token.EOF,
	}, kinds)
}

func TestScanStringAndLineCounting(t *testing.T) {
	toks := scanAll(t, "var s = \"hi\\nthere\";\nprint(s);")
	require.True(t, len(toks) >= 2)
	assert.Equal(t, token.STRING, toks[3].Type)
	assert.Equal(t, `"hi\nthere"`, toks[3].Lexeme)

	// everything after the embedded backslash-n text is still on line 1
	// (the scanner counts real newlines in the source, not escapes).
	assert.Equal(t, 1, toks[3].Line)

	last := toks[len(toks)-2]
	assert.Equal(t, token.SEMICOLON, last.Type)
	assert.Equal(t, 2, last.Line)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"oops`)
	last := toks[len(toks)-1]
	assert.Equal(t, token.ILLEGAL, last.Type)
	assert.Contains(t, last.Lexeme, "unterminated")
}

func TestScanKeywordsVsIdentifiers(t *testing.T) {
	toks := scanAll(t, "fun f(forest) { return forest; }")
	var kinds []token.Token
	for _, tok := range toks {
		kinds = append(kinds, tok.Type)
	}
	assert.Equal(t, []token.Token{
		token.FUN, token.IDENT, token.LPAREN, token.IDENT, token.RPAREN,
		token.LBRACE, token.RETURN, token.IDENT, token.SEMICOLON, token.RBRACE,
		token.EOF,
	}, kinds)
}

func TestScanNumbers(t *testing.T) {
	toks := scanAll(t, "1 2.5 10")
	assert.Equal(t, "1", toks[0].Lexeme)
	assert.Equal(t, "2.5", toks[1].Lexeme)
	assert.Equal(t, "10", toks[2].Lexeme)
}
