package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/vm"
	"github.com/mna/mainer"
)

// Repl drives the interactive read-eval-print loop (spec.md §6: "no args
// -> enter interactive read-eval-print loop (line-by-line, each line
// compiled into the already-running top-level function's chunk; on
// '.exit', exit)").
//
// _examples/original_source/src/repl.c grows one persistent Function's
// chunk across lines and re-enters vm_run on the same call frame — but its
// own commented-out attempts to rewind the chunk after each line
// (zeroing bytes, walking the IP backwards) show the author never got
// that append-in-place trick fully working. corolox instead compiles each
// line as its own top-level script and runs it on the same Thread, so the
// globals table — where top-level "var" declarations live — persists
// across lines exactly as a user typing at the prompt would expect,
// without the chunk-splicing hazard.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	th := vm.NewThread()
	th.Stdout = stdio.Stdout
	th.Stdin = stdio.Stdin
	th.MaxSteps = c.MaxSteps
	th.Heap.StressGC = c.StressGC

	scanner := bufio.NewScanner(stdio.Stdin)
	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdio.Stdout)
			return scanner.Err()
		}

		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == ".exit" {
			return nil
		}

		fn, errs := compiler.Compile(line)
		if len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintln(stdio.Stderr, e)
			}
			continue
		}

		if _, err := th.Run(ctx, fn); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}
	}
}
