// Command refinery assembles refinery planning models from stored case data,
// exports them and hands them to an external MINLP solver.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"refinerycore/internal/solver"
)

var exitFunc = os.Exit

// Exit statuses. Solve runs report the termination condition.
const (
	exitOK         = 0
	exitFailure    = 1
	exitTimeLimit  = 2
	exitInfeasible = 3
	exitSolveError = 4
)

// exitError carries a non-zero status out of a command. err may be nil when
// the outcome was already reported on stdout.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func terminationCode(t solver.Termination) int {
	switch t {
	case solver.Optimal:
		return exitOK
	case solver.TimeLimit:
		return exitTimeLimit
	case solver.Infeasible:
		return exitInfeasible
	default:
		return exitSolveError
	}
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "refinery: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "refinery: %v\n", err)
	return exitFailure
}
