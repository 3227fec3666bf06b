package arc

import (
	"fmt"
	"os"

	"golang.org/x/exp/slog"
)

// AbortFn is called when continuing would corrupt a block's reference counts. It must not return.
type AbortFn func(err error)

var abortFn AbortFn = defaultAbort

func defaultAbort(err error) {
	slog.Default().Error("arc: aborting process", slog.Any("error", err))
	fmt.Fprintf(os.Stderr, "%+v\n", err)
	os.Exit(134)
}

// SetAbortFn replaces the function called when a reference count overflows. It is not safe to
// call concurrently with handle operations and is intended for tests.
func SetAbortFn(fn AbortFn) {
	abortFn = fn
}

// ResetAbortFn restores the default abort function, which terminates the process.
func ResetAbortFn() {
	abortFn = defaultAbort
}

func abort(err error) {
	abortFn(err)
	// An abort function that returns has not stopped anything
	panic(err)
}
