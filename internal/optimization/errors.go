package optimization

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on the failure class
// without parsing messages.
type Kind int

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindInvalidAlgorithm means an algorithm identifier is not in the catalog,
	// or not allowed in the role it was used in.
	KindInvalidAlgorithm
	// KindMissingLocalOptimizer means a meta algorithm was configured without
	// its subordinate local algorithm.
	KindMissingLocalOptimizer
	// KindUnknownOption means an option name has no setter on the engine.
	KindUnknownOption
	// KindUserFunction means an objective, constraint or derivative
	// evaluation failed.
	KindUserFunction
	// KindInvalidModel means the model is inconsistent (dimensions, bounds).
	KindInvalidModel
	// KindEngine means the optimizer engine rejected a configuration call.
	KindEngine
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindInvalidAlgorithm:      "invalid algorithm",
	KindMissingLocalOptimizer: "missing local optimizer",
	KindUnknownOption:         "unknown option",
	KindUserFunction:          "user function error",
	KindInvalidModel:          "invalid model",
	KindEngine:                "engine error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrInvalidAlgorithm      = &Error{Kind: KindInvalidAlgorithm, Message: "invalid algorithm"}
	ErrMissingLocalOptimizer = &Error{Kind: KindMissingLocalOptimizer, Message: "missing local optimizer"}
	ErrUnknownOption         = &Error{Kind: KindUnknownOption, Message: "unknown option"}
	ErrUserFunction          = &Error{Kind: KindUserFunction, Message: "user function error"}
	ErrInvalidModel          = &Error{Kind: KindInvalidModel, Message: "invalid model"}
	ErrEngine                = &Error{Kind: KindEngine, Message: "engine error"}
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind classifies the error.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same non-zero Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind != KindUnknown && e.Kind == t.Kind
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new optimization error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error is, or wraps, an *Error.
// If so, it returns the outermost one and true.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	if e, ok := IsOptimizationError(err); ok {
		return e.Kind
	}
	return KindUnknown
}
