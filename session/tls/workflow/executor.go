package workflow

import (
	"context"
	"log/slog"

	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
)

type Options struct {
	// Modify is consulted for messages flagged Modify before they are sent.
	Modify ModifyFunc
	// Renegotiation builds the trace a Renegotiate action without actions
	// of its own restarts on. Defaults to HandshakeActions.
	Renegotiation Factory
}

// Executor runs traces against a single connection end.
type Executor struct {
	logger *slog.Logger
	opts   Options
}

func NewExecutor(logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{logger: logger, opts: opts}
}

// NewRun prepares the execution of trace over tlsCtx.
func (e *Executor) NewRun(tlsCtx *state.Context, trace *Trace) *Run {
	r := NewRun(tlsCtx, trace)
	r.Logger = e.logger
	r.Modify = e.opts.Modify
	r.Renegotiation = e.opts.Renegotiation
	return r
}

// ExecuteWorkflow executes trace over tlsCtx. A fatal alert or the peer
// closing the connection ends the trace early without an error; crypto and
// transport failures abort it with an *ExecutionError.
//
// Cancelling ctx closes the port of tlsCtx, which unblocks a pending read.
func (e *Executor) ExecuteWorkflow(ctx context.Context, trace *Trace, tlsCtx *state.Context) error {
	return e.Execute(ctx, e.NewRun(tlsCtx, trace))
}

// Execute continues r from its cursor.
func (e *Executor) Execute(ctx context.Context, r *Run) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Ctx.Port.Close() })
	defer stop()

	logger := e.logger.With("role", r.Ctx.Role())
	logger.Debug("executing trace", "actions", r.Trace.Len(), "description", r.Trace.Description)

	for r.Proceed && r.Cursor < r.Trace.Len() {
		a := r.Trace.Actions[r.Cursor]
		if err := ctx.Err(); err != nil {
			return NewExecutionError(r.Cursor, a.Kind(), errors.Wrap(err, "executing trace"))
		}

		if err := a.Execute(r); err != nil {
			logger.Error("action failed", "index", r.Cursor, "action", a.Kind(), "error", err.Error())
			return NewExecutionError(r.Cursor, a.Kind(), err)
		}
		logger.Debug("action executed", "index", r.Cursor, "action", a.Kind())

		if next, ok := r.TakeRestart(); ok {
			logger.Info("renegotiating", "actions", len(next))
			r.Trace.Replace(next)
			r.Cursor = 0
			continue
		}
		r.Cursor++
	}

	if !r.Proceed {
		logger.Info("peer ended the session", "index", r.Cursor, "port", r.Ctx.Port.State())
	}
	return nil
}
