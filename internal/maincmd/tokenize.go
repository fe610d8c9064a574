package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/corolox/corolox/lang/scanner"
	"github.com/corolox/corolox/lang/token"
	"github.com/mna/mainer"
)

// Tokenize scans each file named in args and prints every token it
// produces, one per line. Debug command, not part of the compile-and-run
// path (spec.md §4.1's scanner phase, exposed standalone).
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "could not open file %q: %s\n", path, err)
			return &codedError{code: exitIOError, err: err}
		}

		s := scanner.New(string(src))
		for {
			tok := s.Next()
			fmt.Fprintf(stdio.Stdout, "%4d %s", tok.Line, tok.Type)
			if tok.Type == token.STRING || tok.Type == token.NUMBER || tok.Type == token.IDENT {
				fmt.Fprintf(stdio.Stdout, " %q", tok.Lexeme)
			}
			fmt.Fprintln(stdio.Stdout)
			if tok.Type == token.EOF || tok.Type == token.ILLEGAL {
				break
			}
		}
	}
	return nil
}
