package maincmd_test

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/corolox/corolox/internal/filetest"
	"github.com/corolox/corolox/internal/maincmd"
	"github.com/mna/mainer"
)

// TestRunEndToEnd runs every fixture in testdata/in through the same path
// the "corolox <file>" CLI invocation takes and diffs its stdout/stderr
// against testdata/out. The fixtures are the literal end-to-end scenarios
// (spec.md §8): arithmetic precedence, string concatenation, recursion,
// closures sharing an upvalue across calls, list indexing, dict indexing.
var testUpdateE2ETests = flag.Bool("test.update-e2e-tests", false, "If set, replace expected end-to-end test results with actual results.")

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".corolox") {
		t.Run(fi.Name(), func(t *testing.T) {
			var buf, ebuf bytes.Buffer
			stdio := mainer.Stdio{Stdout: &buf, Stderr: &ebuf}

			var c maincmd.Cmd
			_ = c.Run(ctx, stdio, []string{filepath.Join(srcDir, fi.Name())})

			filetest.DiffOutput(t, fi, buf.String(), resultDir, testUpdateE2ETests)
			filetest.DiffErrors(t, fi, ebuf.String(), resultDir, testUpdateE2ETests)
		})
	}
}
