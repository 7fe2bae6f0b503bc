package errors

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	handlerMu sync.RWMutex
	handler   ErrorHandler = &LogHandler{}
)

// Handler returns the handler Report and Recover deliver to.
func Handler() ErrorHandler {
	handlerMu.RLock()
	defer handlerMu.RUnlock()
	return handler
}

// SetHandler installs h and returns the handler it replaced, so tests can
// restore it. Nil installs a LogHandler on slog.Default().
func SetHandler(h ErrorHandler) ErrorHandler {
	if h == nil {
		h = &LogHandler{}
	}
	handlerMu.Lock()
	defer handlerMu.Unlock()
	prev := handler
	handler = h
	return prev
}

// Report delivers err to the installed handler, stamping it with the
// current time unless it already carries one.
func Report(err *BeamError) {
	if err == nil {
		return
	}
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	Handler().HandleError(err)
}

// Recover reports a panic of the surrounding function as a PanicError and
// stops it. It must be deferred directly:
//
//	defer errors.Recover("component.Menu.ready", "Menu")
func Recover(op, component string) {
	r := recover()
	if r == nil {
		return
	}
	Handler().HandlePanic(&PanicError{
		Op:         op,
		Component:  component,
		Value:      r,
		StackTrace: CaptureStack(2),
		Timestamp:  time.Now(),
	})
}

// CaptureStack formats the calling goroutine's stack, one "function\n\tfile:line"
// entry per frame, leaving out CaptureStack itself and skip further frames.
func CaptureStack(skip int) string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
