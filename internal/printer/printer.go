// Package printer writes blockmul's human-facing console output.
//
// Run progress (banner, dispatch and reply lines, the result matrix and the
// elapsed time) goes to stdout in a fixed plain format. Errors and warnings are
// colored and go to stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/blockmul/pkg/matrix"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Console writes run output. Methods are safe for concurrent use because the
// coordinator reports replies from several goroutines.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	precise bool
}

// NewConsole creates a console writing progress to out and diagnostics to errOut.
// With precise set, matrix entries are printed with %g instead of %5.0f.
func NewConsole(out, errOut io.Writer, precise bool) *Console {
	return &Console{out: out, errOut: errOut, precise: precise}
}

var std = NewConsole(os.Stdout, os.Stderr, false)

// Default returns the console bound to the process's stdout and stderr.
func Default() *Console {
	return std
}

// Started prints the start-of-run line.
func (c *Console) Started(tasks int) {
	c.printf("Matrix multiplication has started with %d tasks.\n", tasks)
}

// Dispatched prints one line per block sent to a worker.
func (c *Console) Dispatched(worker, rows, offset int) {
	c.printf("Sending %d rows to task %d; offset = %d\n", rows, worker, offset)
}

// Received prints one line per reply merged from a worker.
func (c *Console) Received(worker int) {
	c.printf("Received results from task %d\n", worker)
}

// Matrix prints the result matrix, one row per line.
func (c *Console) Matrix(m *matrix.Dense) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("\nResult Matrix:\n")
	for i := 0; i < m.Rows(); i++ {
		for _, v := range m.Row(i) {
			if c.precise {
				fmt.Fprintf(&b, "%g   ", v)
			} else {
				fmt.Fprintf(&b, "%5.0f   ", v)
			}
		}
		b.WriteString("\n")
	}
	io.WriteString(c.out, b.String())
}

// Elapsed prints the wall time of the run in seconds.
func (c *Console) Elapsed(d time.Duration) {
	c.printf("Done in %f seconds.\n", d.Seconds())
}

// Fatal prints a one-line diagnostic to stderr.
func (c *Console) Fatal(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, format+"\n", a...)
}

func (c *Console) printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(std.out, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(std.out, format, a...)
}

// Warning prints a warning message in yellow to stderr
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(std.errOut, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(std.out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation and suggestions to
// stderr and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext prints a formatted error with context details to stderr and
// returns a simple error for Cobra. Context keys are printed in sorted order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	w := std.errOut
	red.Fprintf(w, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "\n")
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %s\n", key, context[key])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(w, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(w, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(w, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Returned error is only the title; SilenceErrors stops Cobra printing it again
	return fmt.Errorf("%s", title)
}
