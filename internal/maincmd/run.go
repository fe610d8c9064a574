package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/vm"
	"github.com/mna/mainer"
)

// Run compiles and executes the single script named by args[0] (spec.md
// §6: "one positional path ... compile and run the file"). -o/--output is
// accepted but reserved for a future bytecode-file format, so it is a
// no-op here.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
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

	th := vm.NewThread()
	th.Stdout = stdio.Stdout
	th.Stdin = stdio.Stdin
	th.MaxSteps = c.MaxSteps
	th.Heap.StressGC = c.StressGC

	if _, err := th.Run(ctx, fn); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return &codedError{code: exitRuntimeError, err: err}
	}
	return nil
}
