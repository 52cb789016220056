// Package relay runs a trace between a real client and a real server,
// receiving every message from one of them and issuing it again to the
// other.
//
// The relay owns two connection ends: the client facing end plays the
// server towards the real client, and the server facing end plays the
// client towards the real server. Both run in the calling goroutine; the
// end that acts is chosen per trace action.
//
// Decrypting relayed traffic needs the pre-master secret. With RSA key
// exchange the client facing end recovers it when it holds the server's
// private key. Ephemeral key exchanges cannot be relayed past the
// ClientKeyExchange.
package relay

import (
	"bytes"
	"context"
	"log/slog"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/message"
	"tlsflow/session/tls/state"
	"tlsflow/session/tls/workflow"

	"github.com/pkg/errors"
)

type Options struct {
	// Modify is consulted for relayed messages flagged Modify.
	Modify workflow.ModifyFunc
	// Renegotiation builds the trace the relay restarts on once a
	// HelloRequest went through. It is called with the trace perspective
	// and defaults to a full handshake.
	Renegotiation workflow.Factory
}

type Relay struct {
	logger *slog.Logger
	opts   Options

	clientFacing, serverFacing *workflow.Run
}

func New(clientFacing, serverFacing *state.Context, logger *slog.Logger, opts Options) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	executor := workflow.NewExecutor(logger, workflow.Options{Modify: opts.Modify})
	return &Relay{
		logger:       logger,
		opts:         opts,
		clientFacing: executor.NewRun(clientFacing, nil),
		serverFacing: executor.NewRun(serverFacing, nil),
	}
}

// ClientFacing is the end talking to the real client.
func (rl *Relay) ClientFacing() *workflow.Run { return rl.clientFacing }

// ServerFacing is the end talking to the real server.
func (rl *Relay) ServerFacing() *workflow.Run { return rl.serverFacing }

// Cursors are the positions of both ends in the trace.
func (rl *Relay) Cursors() (clientFacing, serverFacing int) {
	return rl.clientFacing.Cursor, rl.serverFacing.Cursor
}

// ends returns the end receiving from issuer and the end issuing its
// messages again.
func (rl *Relay) ends(issuer common.Role) (recv, send *workflow.Run) {
	if issuer == common.RoleServer {
		return rl.serverFacing, rl.clientFacing
	}
	return rl.clientFacing, rl.serverFacing
}

func (rl *Relay) proceed() bool {
	return rl.clientFacing.Proceed && rl.serverFacing.Proceed
}

// Execute relays trace. Send actions are issued by the trace perspective
// and Receive actions by its peer; other actions apply to both ends.
// Unexecuted actions are pruned from trace on return.
//
// Cancelling ctx closes both ports.
func (rl *Relay) Execute(ctx context.Context, trace *workflow.Trace) error {
	stop := context.AfterFunc(ctx, func() {
		_ = rl.clientFacing.Ctx.Port.Close()
		_ = rl.serverFacing.Ctx.Port.Close()
	})
	defer stop()
	defer trace.Prune()

	rl.clientFacing.Trace, rl.serverFacing.Trace = trace, trace
	rl.clientFacing.Cursor, rl.serverFacing.Cursor = 0, 0
	rl.clientFacing.Proceed, rl.serverFacing.Proceed = true, true

	logger := rl.logger.With("perspective", trace.Perspective)
	logger.Debug("relaying trace", "actions", trace.Len(), "description", trace.Description)

	for cursor := 0; cursor < trace.Len() && rl.proceed(); {
		a := trace.Actions[cursor]
		if err := ctx.Err(); err != nil {
			return workflow.NewExecutionError(cursor, a.Kind(), errors.Wrap(err, "relaying trace"))
		}
		if err := a.Begin(); err != nil {
			return workflow.NewExecutionError(cursor, a.Kind(), err)
		}

		restart, renegotiated, err := rl.step(trace, cursor, a)
		a.End(err)
		if err != nil {
			logger.Error("relaying failed", "index", cursor, "action", a.Kind(), "error", err.Error())
			return workflow.NewExecutionError(cursor, a.Kind(), err)
		}
		logger.Debug("action relayed", "index", cursor, "action", a.Kind())

		if renegotiated {
			logger.Info("renegotiating", "actions", len(restart))
			trace.Replace(restart)
			rl.clientFacing.Cursor, rl.serverFacing.Cursor = 0, 0
			cursor = 0
			continue
		}
		cursor++
		rl.clientFacing.Cursor, rl.serverFacing.Cursor = cursor, cursor
	}

	if !rl.proceed() {
		logger.Info("peer ended the session",
			"client", rl.clientFacing.Ctx.Port.State(),
			"server", rl.serverFacing.Ctx.Port.State(),
		)
	}
	return nil
}

// step runs the action at cursor. When the action renegotiated it also
// returns the actions to restart on.
func (rl *Relay) step(trace *workflow.Trace, cursor int, a workflow.Action) ([]workflow.Action, bool, error) {
	switch a := a.(type) {
	case *workflow.Send:
		res, err := rl.relay(trace, cursor, trace.Perspective, a.Messages)
		a.Messages = res.Configured
		if err != nil || !helloRequested(res) {
			return nil, false, err
		}
		return rl.renegotiate(trace, nil), true, nil

	case *workflow.Receive:
		res, err := rl.relay(trace, cursor, trace.Perspective.Opposite(), a.Expected)
		a.Expected, a.Observed, a.Mismatched = res.Configured, res.Observed, res.Mismatch
		if err != nil || !helloRequested(res) {
			return nil, false, err
		}
		return rl.renegotiate(trace, nil), true, nil

	case *workflow.ForwardOnly:
		return nil, false, rl.forward(a.From)

	case *workflow.Renegotiate:
		return rl.renegotiate(trace, a.Actions), true, nil
	}

	if err := a.Apply(rl.clientFacing); err != nil {
		return nil, false, err
	}
	return nil, false, a.Apply(rl.serverFacing)
}

// relay receives the messages issuer sends on the end facing it and issues
// what arrived on the other end.
func (rl *Relay) relay(trace *workflow.Trace, cursor int, issuer common.Role, expected []message.Message) (workflow.ReceiveResult, error) {
	recv, send := rl.ends(issuer)

	recv.Cursor = cursor
	res, err := recv.Receive(expected)
	if err != nil {
		return res, err
	}
	if res.Mismatch {
		trace.TruncateAfter(cursor)
	}

	// Expected messages that never arrived are not issued.
	var out []message.Message
	for _, m := range res.Configured {
		if m.Common().FromWire() {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return res, nil
	}

	send.Cursor = cursor
	return res, send.Send(out)
}

// helloRequested reports whether a HelloRequest went through.
func helloRequested(res workflow.ReceiveResult) bool {
	for _, m := range res.Observed {
		if m.Type() == message.TypeHelloRequest {
			return true
		}
	}
	return false
}

// renegotiate resets both ends for a new handshake and returns the actions
// to restart on: next when given, otherwise the renegotiation trace.
func (rl *Relay) renegotiate(trace *workflow.Trace, next []workflow.Action) []workflow.Action {
	rl.clientFacing.Ctx.Renegotiate()
	rl.serverFacing.Ctx.Renegotiate()

	switch {
	case next != nil:
		return next
	case rl.opts.Renegotiation != nil:
		return rl.opts.Renegotiation(trace.Perspective)
	}
	kx := rl.clientFacing.Ctx.SuiteOrNull().KeyExchange()
	return workflow.HandshakeActions(trace.Perspective, kx)
}

// forward copies raw bytes from the peer in role from to the other one,
// starting with whatever the receiving end has buffered.
func (rl *Relay) forward(from common.Role) error {
	src, dst := rl.ends(from)

	data := bytes.Clone(src.Ctx.Layer.Pending())
	src.Ctx.Layer.DiscardPending()
	if len(data) == 0 {
		b, err := src.Ctx.Port.FetchData()
		if err != nil {
			return errors.Wrap(common.ErrIO, err.Error())
		}
		data = b
	}

	if len(data) == 0 {
		src.Proceed = false
		return errors.Wrapf(workflow.ErrNoData, "port %s", src.Ctx.Port.State())
	}

	if err := dst.Ctx.Port.SendData(data); err != nil {
		return errors.Wrap(common.ErrIO, err.Error())
	}
	rl.logger.Debug("forwarded raw bytes", "from", from, "bytes", len(data))
	return nil
}
