package maincmd

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "corolox"

// Exit codes per the external-interfaces contract: 0 success, 65 compile
// error, 70 runtime error, 74 I/O error opening or reading input.
const (
	exitCompileError mainer.ExitCode = 65
	exitRuntimeError mainer.ExitCode = 70
	exitIOError      mainer.ExitCode = 74
)

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Bytecode compiler and virtual machine for the %[1]s scripting language.

With no <path>, starts an interactive read-eval-print loop: each line is
compiled and run against the same running globals table; ".exit" quits.

With a <path>, compiles and runs the file, then exits.

The following debug commands execute a single phase of compilation and
print its result, instead of running the program:
       tokenize <path>...        Scan the file(s) and print every token.
       disasm <path>...          Compile the file(s) and print the
                                 disassembled bytecode for every chunk.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -o --output PATH          Reserved for a future compiled-bytecode
                                 output format. Currently accepted and
                                 ignored.
       --max-steps N             Abort a run after N bytecode instructions
                                 (0, the default, means no limit). Also
                                 settable via COROLOX_MAX_STEPS.
       --stress-gc               Force a full collection before every
                                 string, list and dict allocation, for
                                 exercising the collector under maximal
                                 pressure (closure and coroutine creation
                                 does not collect). Also settable via
                                 COROLOX_STRESS_GC.
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Output string `flag:"o,output"`

	MaxSteps int  `flag:"max-steps"`
	StressGC bool `flag:"stress-gc"`

	args  []string
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		c.cmdFn = c.Repl
		return nil
	}

	cmdName := c.args[0]
	if cmdName == "tokenize" || cmdName == "disasm" {
		if len(c.args[1:]) == 0 {
			return fmt.Errorf("%s: at least one file must be provided", cmdName)
		}
		commands := buildCmds(c)
		c.cmdFn = commands[cmdName]
		c.args = c.args[1:]
		return nil
	}

	// not a debug command: the lone positional argument is a script path
	// to run, per the one-binary CLI surface.
	if len(c.args) != 1 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(c.args[1:], " "))
	}
	c.cmdFn = c.Run
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   true,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args); err != nil {
		if code, ok := err.(exitCoder); ok {
			return code.ExitCode()
		}
		return exitRuntimeError
	}
	return mainer.Success
}

// exitCoder lets a command report a specific exit code (compile vs.
// runtime vs. I/O error) instead of the generic mainer.Failure.
type exitCoder interface {
	error
	ExitCode() mainer.ExitCode
}

type codedError struct {
	code mainer.ExitCode
	err  error
}

func (e *codedError) Error() string            { return e.err.Error() }
func (e *codedError) Unwrap() error             { return e.err }
func (e *codedError) ExitCode() mainer.ExitCode { return e.code }

func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
