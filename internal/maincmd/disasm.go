package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/mna/mainer"
)

// Disasm compiles each file named in args and prints the disassembled
// bytecode for every chunk it produces (spec.md §4.3's chunk/line-table
// design, exposed as a debug command rather than only exercised by
// tests).
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "could not open file %q: %s\n", path, err)
			return &codedError{code: exitIOError, err: err}
		}

		fn, errs := compiler.Compile(string(src))
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintln(stdio.Stderr, e)
			}
			return &codedError{code: exitCompileError, err: errs[0]}
		}

		fmt.Fprint(stdio.Stdout, compiler.Disassemble(fn))
	}
	return nil
}
