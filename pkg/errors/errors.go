// Package errors provides structured error reporting for beam components.
//
// Failures that cross the component factory boundary are wrapped in a
// BeamError so callers can tell which component and which phase failed
// while errors.As still reaches the underlying cause. Conditions that are
// not fatal (plugin collisions, unknown tags, isolated hook panics) are sent
// to a pluggable ErrorHandler through Report.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindTemplate indicates a template that failed to parse.
	KindTemplate
	// KindCodegen indicates a parsed template that could not be compiled.
	KindCodegen
	// KindPlugin indicates a plugin setup problem.
	KindPlugin
	// KindRender indicates a failure while materializing children.
	KindRender
	// KindEffect indicates a failing binding or watcher.
	KindEffect
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindCodegen:
		return "codegen"
	case KindPlugin:
		return "plugin"
	case KindRender:
		return "render"
	case KindEffect:
		return "effect"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// BeamError represents a structured error raised by the component runtime.
type BeamError struct {
	// Op is the operation that failed (e.g., "component.Setup").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Component is the component type name, if applicable.
	Component string
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *BeamError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s [%s] component=%s: %v", e.Op, e.Kind, e.Component, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *BeamError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "component.Menu.ready").
	Op string
	// Component is the component type name, if applicable.
	Component string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ErrorHandler receives errors reported by the runtime.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *BeamError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
