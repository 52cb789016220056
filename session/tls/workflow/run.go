package workflow

import (
	"log/slog"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/message"
	"tlsflow/session/tls/record"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
)

// ModifyFunc approves or rewrites a serialized message flagged Modify
// before it is sent. Returning an error aborts the trace.
type ModifyFunc func(m message.Message, serialized []byte) ([]byte, error)

// Factory builds the actions a connection end of role runs.
type Factory func(role common.Role) []Action

// Run is the execution state of one connection end walking a trace.
type Run struct {
	Ctx   *state.Context
	Trace *Trace

	// Cursor is the index of the action being executed.
	Cursor int
	// Proceed turns false when the peer ended the session. No further
	// messages are expected then.
	Proceed bool

	Logger        *slog.Logger
	Modify        ModifyFunc
	Renegotiation Factory

	restart    []Action
	restarting bool
}

func NewRun(ctx *state.Context, trace *Trace) *Run {
	return &Run{
		Ctx:     ctx,
		Trace:   trace,
		Proceed: true,
		Logger:  slog.New(slog.DiscardHandler),
	}
}

func (r *Run) renegotiation(role common.Role) []Action {
	if r.Renegotiation != nil {
		return r.Renegotiation(role)
	}
	return HandshakeActions(role, r.Ctx.SuiteOrNull().KeyExchange())
}

// TakeRestart returns the actions a renegotiation asked to restart on.
func (r *Run) TakeRestart() ([]Action, bool) {
	next, ok := r.restart, r.restarting
	r.restart, r.restarting = nil, false
	return next, ok
}

// tolerate logs err unless it must abort the trace.
func (r *Run) tolerate(err error) error {
	if err == nil {
		return nil
	}
	if fatal(err) {
		return err
	}
	r.Logger.Warn("tolerating peer misbehavior", "role", r.Ctx.Role(), "error", err.Error())
	return nil
}

// Send serializes ms and transmits them. Consecutive messages of one
// content type share records; a message with records of its own is framed
// alone. A flight whose last message has no records gets one empty record
// to be filled.
func (r *Run) Send(ms []message.Message) error {
	var active []message.Message
	for _, m := range ms {
		if !m.Common().Skip {
			active = append(active, m)
		}
	}

	var group []message.Message
	for i, m := range active {
		own := len(m.Common().Records) > 0
		if own && len(group) > 0 {
			if err := r.flush(group); err != nil {
				return err
			}
			group = nil
		}

		if err := r.serialize(m); err != nil {
			return err
		}
		group = append(group, m)

		var next message.Message
		if i+1 < len(active) {
			next = active[i+1]
		}
		if own || next == nil || next.ContentType() != m.ContentType() || len(next.Common().Records) > 0 {
			if err := r.flush(group); err != nil {
				return err
			}
			group = nil
		}
	}
	return nil
}

func (r *Run) serialize(m message.Message) error {
	b, err := message.Serialize(r.Ctx, m)
	if err != nil {
		return err
	}

	if m.Common().Modify && r.Modify != nil {
		if b, err = r.Modify(m, b); err != nil {
			return errors.Wrapf(err, "modifying %s", m.Type())
		}
		m.Common().Raw = b
	}

	return r.tolerate(message.AdjustSent(r.Ctx, m))
}

func (r *Run) flush(group []message.Message) error {
	var content []byte
	for _, m := range group {
		content = append(content, m.Common().Raw...)
	}

	last := group[len(group)-1].Common()
	if len(last.Records) == 0 {
		last.Records = []*record.Record{record.New()}
	}

	ct := group[0].ContentType()
	records, wire, err := r.Ctx.Layer.Protect(ct, r.Ctx.RecordVersion(), content, last.Records)
	if err != nil {
		return err
	}
	last.Records = records

	if err := r.Ctx.Port.SendData(wire); err != nil {
		return errors.Wrap(common.ErrIO, err.Error())
	}

	for _, m := range group {
		message.Commit(r.Ctx, m)
	}
	r.Logger.Debug("sent flight",
		"role", r.Ctx.Role(),
		"messages", message.TypeNames(group),
		"records", len(records),
	)
	return nil
}

// ReceiveResult is what Run.Receive observed.
type ReceiveResult struct {
	// Configured is the expected list with observed values bound. After a
	// mismatch it ends with the unexpected messages instead of the rest.
	Configured []message.Message
	Observed   []message.Message
	// Mismatch is set when a message other than the expected one arrived.
	Mismatch bool
}

// Receive reads until every expected message is bound, a mismatch or a
// fatal alert is seen, or the port ends. With nothing expected it takes
// whatever the next batch of records holds. Records read past the last
// expected message are handed back to the record layer undecoded.
func (r *Run) Receive(expected []message.Message) (ReceiveResult, error) {
	res := ReceiveResult{Configured: expected}
	next := 0
	open := len(expected) == 0

	observe := func(m message.Message) {
		res.Observed = append(res.Observed, m)
		if message.Fatal(m) {
			r.Proceed = false
		}

		if !open && !res.Mismatch && next < len(res.Configured) && message.Matches(res.Configured[next], m) {
			_ = message.Bind(res.Configured[next], m)
			next++
			return
		}

		if !open && !res.Mismatch {
			res.Mismatch = true
			res.Configured = res.Configured[:next:next]
			r.Logger.Info("unexpected message, truncating trace",
				"role", r.Ctx.Role(),
				"cursor", r.Cursor,
				"observed", m.Type().String(),
			)
		}
		fresh := message.MustNew(m.Type())
		_ = message.Bind(fresh, m)
		res.Configured = append(res.Configured, fresh)
		next = len(res.Configured)
	}

	done := func() bool {
		if !r.Proceed || res.Mismatch {
			return true
		}
		if open {
			return len(res.Observed) > 0
		}
		return next >= len(res.Configured)
	}

	// satisfied is done without the open and mismatch cases: those take
	// the whole batch.
	satisfied := func() bool {
		return !r.Proceed || (!open && !res.Mismatch && next >= len(res.Configured))
	}

	// span holds the records of a handshake message still being reassembled.
	var span []*record.Record
	for !done() {
		records, err := r.Ctx.Layer.ReadBatch(r.Ctx.Port)
		if errors.Is(err, common.ErrParser) {
			// Bytes that cannot be framed as records end the exchange.
			observe(r.unframed())
			r.Proceed = false
			break
		}
		if err != nil {
			return res, err
		}

		if len(records) == 0 {
			r.Proceed = false
			if len(res.Observed) == 0 {
				return res, errors.Wrapf(ErrNoData, "port %s", r.Ctx.Port.State())
			}
			break
		}

		batch := units(records)
		for i, unit := range batch {
			if satisfied() {
				// The rest belongs to the actions that follow.
				var rest []*record.Record
				for _, u := range batch[i:] {
					rest = append(rest, u...)
				}
				r.Ctx.Layer.Unread(rest)
				r.Logger.Debug("leaving records for the next action",
					"role", r.Ctx.Role(),
					"records", len(rest),
				)
				break
			}

			span = append(span, unit...)
			ms, err := r.open(unit, span)
			if err != nil {
				return res, err
			}
			if len(ms) > 0 {
				span = nil
			}
			for _, m := range ms {
				if err := r.tolerate(message.AdjustReceived(r.Ctx, m)); err != nil {
					return res, err
				}
				observe(m)
			}
		}
	}

	r.Logger.Debug("received",
		"role", r.Ctx.Role(),
		"messages", message.TypeNames(res.Observed),
		"proceed", r.Proceed,
	)
	return res, nil
}

// units splits a batch into what Receive decodes at once. Handshake
// records go one by one so a batch can be left half read; other content
// types go in same-typed runs.
func units(records []*record.Record) [][]*record.Record {
	var out [][]*record.Record
	for _, group := range record.Group(records) {
		if group[0].ContentType.Value() != common.ContentHandshake {
			out = append(out, group)
			continue
		}
		for _, rec := range group {
			out = append(out, []*record.Record{rec})
		}
	}
	return out
}

// open removes the protection of a unit of same-typed records and decodes
// their content. Decoded messages are attributed to span.
func (r *Run) open(unit, span []*record.Record) ([]message.Message, error) {
	var content []byte
	for _, rec := range unit {
		if err := r.Ctx.Layer.Unprotect(rec); err != nil {
			return nil, err
		}
		content = append(content, rec.Plaintext...)
	}
	return message.Decode(r.Ctx, unit[0].ContentType.Value(), content, span), nil
}

func (r *Run) unframed() message.Message {
	data := r.Ctx.Layer.Pending()
	r.Ctx.Layer.DiscardPending()
	ms := message.Decode(r.Ctx, common.ContentInvalid, data, nil)
	return ms[0]
}
