package workflow

import (
	"fmt"

	"tlsflow/session/tls/common"

	"github.com/pkg/errors"
)

var (
	ErrWorkflowExecution = errors.New("workflow execution failed")

	ErrDoubleExecution = errors.New("action already executed")
	ErrNoData          = errors.New("no data received from peer")
)

// ExecutionError aborts a trace. It records where the trace stopped.
type ExecutionError struct {
	Index int
	Kind  Kind
	cause error
}

func NewExecutionError(index int, kind Kind, cause error) *ExecutionError {
	return &ExecutionError{Index: index, Kind: kind, cause: cause}
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: action %d (%s): %s", ErrWorkflowExecution, e.Index, e.Kind, e.cause)
}

func (e *ExecutionError) Cause() error  { return e.cause }
func (e *ExecutionError) Unwrap() error { return e.cause }

func (e *ExecutionError) Is(err error) bool {
	return err == ErrWorkflowExecution
}

// fatal reports whether err must abort the trace. Everything else coming
// out of message handling is peer misbehavior the engine puts up with.
func fatal(err error) bool {
	return errors.Is(err, common.ErrCrypto) || errors.Is(err, common.ErrIO)
}
