// Package console implements the breakpoint debugger loop the driver
// exposes when a decompile run halts on a rule or action breakpoint.
// Grounded on repl/repl.go's read-line/dispatch/print loop, generalized
// from "parse one line of source and print its AST" to "parse one
// debugger command and dispatch it against the current pipeline
// state."
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"pcodecore/internal/action"
	"pcodecore/internal/rules"
)

// Prompt is printed before each command read, matching the teacher's
// PROMPT constant.
const Prompt = "(pcode) "

// Session owns the state one breakpoint console interacts with.
type Session struct {
	DB       *action.Database
	Pool     *rules.Pool
	Store    *storeInspector
	quitting bool
}

// storeInspector is the minimal read surface the console needs from an
// IR store: a single describe callback, so console never has to import
// internal/varnode's mutation API.
type storeInspector struct {
	Describe func() string
}

// NewStoreInspector wraps a describe function into a storeInspector.
func NewStoreInspector(describe func() string) *storeInspector {
	return &storeInspector{Describe: describe}
}

// Run reads commands from in and writes responses to out until the
// user quits or in is exhausted, matching repl.Start's
// bufio.Scanner-per-line loop.
func (s *Session) Run(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for !s.quitting {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.dispatch(line, out)
	}
}

func (s *Session) dispatch(line string, out io.Writer) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "continue", "c":
		fmt.Fprintln(out, "resuming")
	case "quit", "q":
		s.quitting = true
	case "print", "p":
		if s.Store != nil {
			fmt.Fprintln(out, s.Store.Describe())
		} else {
			fmt.Fprintln(out, "no store attached")
		}
	case "stats":
		s.printStats(args, out)
	case "break", "b":
		s.setBreakpoint(args, out, true)
	case "unbreak":
		s.setBreakpoint(args, out, false)
	case "root":
		s.selectRoot(args, out)
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
	}
}

func (s *Session) printStats(args []string, out io.Writer) {
	if len(args) == 0 || s.Pool == nil {
		fmt.Fprintln(out, "usage: stats <rule-name>")
		return
	}
	st, ok := s.Pool.StatsFor(args[0])
	if !ok {
		fmt.Fprintf(out, "no such rule: %s\n", args[0])
		return
	}
	fmt.Fprintf(out, "%s: tests=%d successes=%d\n", args[0], st.Tests, st.Successes)
}

func (s *Session) setBreakpoint(args []string, out io.Writer, enable bool) {
	if len(args) == 0 || s.Pool == nil {
		fmt.Fprintln(out, "usage: break <rule-name> [entry|change]")
		return
	}
	kind := "entry"
	if len(args) > 1 {
		kind = args[1]
	}
	bp := rules.Breakpoints{}
	switch kind {
	case "entry":
		bp.BreakOnEntry = enable
	case "change":
		bp.BreakOnChange = enable
	default:
		fmt.Fprintf(out, "unknown breakpoint kind: %s\n", kind)
		return
	}
	if err := s.Pool.SetBreakpoints(args[0], bp); err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "breakpoint on %s (%s) set=%v\n", args[0], kind, enable)
}

func (s *Session) selectRoot(args []string, out io.Writer) {
	if len(args) == 0 || s.DB == nil {
		fmt.Fprintln(out, "usage: root <name>")
		return
	}
	if err := s.DB.SelectRoot(args[0]); err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "current root action: %s\n", args[0])
}
