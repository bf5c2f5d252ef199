package command

import (
	"fmt"
	"strings"
)

// clientError marks errors whose text is the response sent to the client.
// Anything else reaching the session boundary is logged and reported as a
// generic failure instead.
type clientError interface {
	error
	clientError()
}

// IsClientError reports whether err's text may be sent to the client
// verbatim.
func IsClientError(err error) bool {
	_, ok := err.(clientError)
	return ok
}

type reportedError struct{ msg string }

func (e *reportedError) Error() string { return e.msg }
func (e *reportedError) clientError()  {}

// Typed command errors. Response texts follow the wire protocol's
// established "Error: ..." lines.
var (
	ErrSyntax              = &reportedError{msg: "Error: Invalid command syntax"}
	ErrUnknownCommand      = &reportedError{msg: "Error: Invalid command"}
	ErrMissingLogin        = &reportedError{msg: "Error: Missing username"}
	ErrMissingPassword     = &reportedError{msg: "Error: Missing password"}
	ErrNoSuchLogin         = &reportedError{msg: "Error: No such login"}
	ErrAlreadyRegistered   = &reportedError{msg: "Error: This login is already registered"}
	ErrAlreadyLive         = &reportedError{msg: "Error: This login is already registered and has another session"}
	ErrIncorrectPassword   = &reportedError{msg: "Error: Incorrect password"}
	ErrAdminOnly           = &reportedError{msg: "Error: Administrator privileges required"}
	ErrInsufficientBalance = &reportedError{msg: "Error: Insufficient balance"}
	ErrNegativeBalance     = &reportedError{msg: "Error: Balance cannot be negative"}
)

// StateError reports a verb issued in the wrong connection state.
type StateError struct {
	Verb     string
	Expected []State
	Actual   State
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		names[i] = s.String()
	}
	return fmt.Sprintf("Error: Command %q requires state %s (currently %s)",
		e.Verb, strings.Join(names, " or "), e.Actual)
}

func (e *StateError) clientError() {}

// EvalError wraps a parse or arithmetic failure from the evaluator.
type EvalError struct {
	Cause error
}

func (e *EvalError) Error() string {
	return "Error: Invalid expression: " + e.Cause.Error()
}

func (e *EvalError) Unwrap() error { return e.Cause }
func (e *EvalError) clientError()  {}

// PersistError wraps a backing-store failure. The cause is logged
// server-side; the client only learns that storage failed.
type PersistError struct {
	Op    string
	Cause error
}

func (e *PersistError) Error() string {
	return "Error: Storage failure, please try again"
}

func (e *PersistError) Unwrap() error { return e.Cause }
func (e *PersistError) clientError()  {}
