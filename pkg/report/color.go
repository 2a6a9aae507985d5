// Package report renders sync engine activity for a human operator:
// colored console lines for create/update/delete/conflict/resolution
// events, and a compact preview of an arbitrary JSON payload. Operations
// are colored consistently: green for create, yellow for update, red for
// delete, and a distinct color for conflict detection/resolution.
package report

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	mu sync.Mutex
	// DisableOutput silences every Println/Printf below; tests set this.
	DisableOutput bool
)

func conditionalPrintln(fn func(...interface{}), a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(a...)
}

func conditionalFprintln(fn func(io.Writer, ...interface{}), w io.Writer, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(w, a...)
}

var (
	createPrintln     = color.New(color.FgGreen).PrintlnFunc()
	updatePrintln     = color.New(color.FgYellow).PrintlnFunc()
	deletePrintln     = color.New(color.FgRed).PrintlnFunc()
	conflictPrintln   = color.New(color.FgMagenta).PrintlnFunc()
	resolvedPrintln   = color.New(color.FgBlue).PrintlnFunc()
	warnFprintln      = color.New(color.FgYellow).FprintlnFunc()

	// CreatePrintln reports a CREATE SyncEvent in green.
	CreatePrintln = func(a ...interface{}) { conditionalPrintln(createPrintln, a...) }
	// UpdatePrintln reports an UPDATE SyncEvent in yellow.
	UpdatePrintln = func(a ...interface{}) { conditionalPrintln(updatePrintln, a...) }
	// DeletePrintln reports a DELETE SyncEvent in red.
	DeletePrintln = func(a ...interface{}) { conditionalPrintln(deletePrintln, a...) }
	// ConflictPrintln flags a newly detected conflict in magenta.
	ConflictPrintln = func(a ...interface{}) { conditionalPrintln(conflictPrintln, a...) }
	// ResolvedPrintln reports a conflict resolution in blue.
	ResolvedPrintln = func(a ...interface{}) { conditionalPrintln(resolvedPrintln, a...) }
	// WarnPrintlnStdErr reports a non-fatal warning (e.g. a swallowed
	// maintenance error) to stderr in yellow.
	WarnPrintlnStdErr = func(a ...interface{}) { conditionalFprintln(warnFprintln, os.Stderr, a...) }
)
