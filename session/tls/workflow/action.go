// Package workflow executes traces of protocol actions against a
// connection end.
package workflow

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/message"
	"tlsflow/session/tls/record"

	"github.com/pkg/errors"
)

type Kind uint8

const (
	KindSend Kind = iota + 1
	KindReceive
	KindChangeCipherSuite
	KindChangeRandom
	KindChangeProtocolVersion
	KindChangePreMasterSecret
	KindToggleEncryption
	KindDeactivateEncryption
	KindRenegotiate
	KindForwardOnly
)

var kindNames = map[Kind]string{
	KindSend:                  "Send",
	KindReceive:               "Receive",
	KindChangeCipherSuite:     "ChangeCipherSuite",
	KindChangeRandom:          "ChangeRandom",
	KindChangeProtocolVersion: "ChangeProtocolVersion",
	KindChangePreMasterSecret: "ChangePreMasterSecret",
	KindToggleEncryption:      "ToggleEncryption",
	KindDeactivateEncryption:  "DeactivateEncryption",
	KindRenegotiate:           "Renegotiate",
	KindForwardOnly:           "ForwardOnly",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, errors.Wrapf(common.ErrConfiguration, "unknown action %q", s)
}

type ExecState uint8

const (
	NotExecuted ExecState = iota
	Executing
	Executed
	Failed
)

func (s ExecState) String() string {
	switch s {
	case NotExecuted:
		return "not executed"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Status tracks the execution of one action. An action leaves
// NotExecuted once and only Reset brings it back.
type Status struct {
	state ExecState
}

func (s *Status) State() ExecState { return s.state }
func (s *Status) Executed() bool   { return s.state == Executed }

// Begin moves to Executing. Any state but NotExecuted is left untouched
// and reported as ErrDoubleExecution.
func (s *Status) Begin() error {
	if s.state != NotExecuted {
		return errors.Wrapf(ErrDoubleExecution, "action is %s", s.state)
	}
	s.state = Executing
	return nil
}

// End settles the outcome of Begin.
func (s *Status) End(err error) {
	if err != nil {
		s.state = Failed
		return
	}
	s.state = Executed
}

func (s *Status) Reset() { s.state = NotExecuted }

// Action is one step of a trace. The set of implementations is closed.
//
// Execute runs Apply between Begin and End. Apply performs the effect
// alone, so a relay can apply one action to both of its ends.
type Action interface {
	Kind() Kind
	State() ExecState
	Executed() bool
	Begin() error
	End(err error)
	Execute(r *Run) error
	Apply(r *Run) error
	Reset()

	status() *Status
}

func (s *Status) status() *Status { return s }

func execute(a Action, r *Run) error {
	if err := a.Begin(); err != nil {
		return err
	}
	err := a.Apply(r)
	a.End(err)
	return err
}

// Send transmits its messages to the peer.
type Send struct {
	Status
	Messages []message.Message
}

func NewSend(ms ...message.Message) *Send { return &Send{Messages: ms} }

func (a *Send) Kind() Kind { return KindSend }

func (a *Send) Execute(r *Run) error { return execute(a, r) }
func (a *Send) Apply(r *Run) error   { return r.Send(a.Messages) }

// Records are those the messages went out in.
func (a *Send) Records() []*record.Record {
	var out []*record.Record
	for _, m := range a.Messages {
		out = append(out, m.Common().Records...)
	}
	return out
}

// Receive reads messages from the peer and binds them onto Expected.
// Observed holds everything decoded, in order.
//
// When the peer sent something else, Expected is rewritten to what
// actually arrived and Mismatched is set.
type Receive struct {
	Status
	Expected   []message.Message
	Observed   []message.Message
	Mismatched bool
}

func NewReceive(ms ...message.Message) *Receive { return &Receive{Expected: ms} }

func (a *Receive) Kind() Kind { return KindReceive }

func (a *Receive) Execute(r *Run) error { return execute(a, r) }

func (a *Receive) Apply(r *Run) error {
	res, err := r.Receive(a.Expected)
	a.Expected, a.Observed, a.Mismatched = res.Configured, res.Observed, res.Mismatch
	if res.Mismatch && r.Trace != nil {
		r.Trace.TruncateAfter(r.Cursor)
	}
	return err
}

// ExecutedAsPlanned reports whether every expected message arrived.
func (a *Receive) ExecutedAsPlanned() bool {
	if !a.Executed() || a.Mismatched || len(a.Observed) < len(a.Expected) {
		return false
	}
	for i, m := range a.Expected {
		if !message.Matches(m, a.Observed[i]) {
			return false
		}
	}
	return true
}

func (a *Receive) Reset() {
	a.Status.Reset()
	a.Observed = nil
	a.Mismatched = false
}

// ChangeCipherSuite selects Suite and, once keys exist, replaces the
// protection of both directions with ciphers derived for it.
type ChangeCipherSuite struct {
	Status
	Suite ciphersuite.ID
	Old   ciphersuite.ID
}

func (a *ChangeCipherSuite) Kind() Kind { return KindChangeCipherSuite }

func (a *ChangeCipherSuite) Execute(r *Run) error { return execute(a, r) }

func (a *ChangeCipherSuite) Apply(r *Run) error {
	ctx := r.Ctx
	a.Old = ctx.SuiteOrNull().ID()
	if err := ctx.SetSuite(a.Suite); err != nil {
		return err
	}
	if len(ctx.MasterSecret) == 0 {
		return nil
	}

	if err := ctx.RebuildPending(); err != nil {
		return err
	}
	ctx.Layer.InstallWrite(ctx.Pending)
	ctx.Layer.InstallRead(ctx.Pending)
	return nil
}

// ChangeRandom replaces the random of Role.
type ChangeRandom struct {
	Status
	Role   common.Role
	Random []byte
	Old    []byte
}

func (a *ChangeRandom) Kind() Kind { return KindChangeRandom }

func (a *ChangeRandom) Execute(r *Run) error { return execute(a, r) }

func (a *ChangeRandom) Apply(r *Run) error {
	target := &r.Ctx.ClientRandom
	if a.Role == common.RoleServer {
		target = &r.Ctx.ServerRandom
	}
	a.Old = *target
	*target = bytes.Clone(a.Random)
	return nil
}

type ChangeProtocolVersion struct {
	Status
	Version common.Version
	Old     common.Version
}

func (a *ChangeProtocolVersion) Kind() Kind { return KindChangeProtocolVersion }

func (a *ChangeProtocolVersion) Execute(r *Run) error { return execute(a, r) }

func (a *ChangeProtocolVersion) Apply(r *Run) error {
	a.Old = r.Ctx.Version
	r.Ctx.SetVersion(a.Version)
	return nil
}

// ChangePreMasterSecret replaces the pre-master secret and, when a suite
// is selected, derives the pending cipher from it.
type ChangePreMasterSecret struct {
	Status
	Secret []byte
	Old    []byte
}

func (a *ChangePreMasterSecret) Kind() Kind { return KindChangePreMasterSecret }

func (a *ChangePreMasterSecret) Execute(r *Run) error { return execute(a, r) }

func (a *ChangePreMasterSecret) Apply(r *Run) error {
	ctx := r.Ctx
	a.Old = ctx.PreMasterSecret
	ctx.PreMasterSecret = bytes.Clone(a.Secret)
	if ctx.Suite == nil || len(a.Secret) == 0 {
		return nil
	}
	return ctx.DeriveSecrets()
}

// ToggleEncryption switches record protection off, keeping the ciphers
// aside, or back on with them.
type ToggleEncryption struct{ Status }

func (a *ToggleEncryption) Kind() Kind { return KindToggleEncryption }

func (a *ToggleEncryption) Execute(r *Run) error { return execute(a, r) }

func (a *ToggleEncryption) Apply(r *Run) error {
	layer := r.Ctx.Layer
	if saved := r.Ctx.SavedSlots; saved != nil {
		read, write := layer.ReadSlot(), layer.WriteSlot()
		read.Cipher, write.Cipher = saved[0].Cipher, saved[1].Cipher
		layer.SwapSlots(read, write)
		r.Ctx.SavedSlots = nil
		return nil
	}

	read, write := layer.SwapSlots(layer.NullSlots())
	r.Ctx.SavedSlots = &[2]record.Slot{read, write}
	return nil
}

// DeactivateEncryption drops record protection for good.
type DeactivateEncryption struct{ Status }

func (a *DeactivateEncryption) Kind() Kind { return KindDeactivateEncryption }

func (a *DeactivateEncryption) Execute(r *Run) error { return execute(a, r) }

func (a *DeactivateEncryption) Apply(r *Run) error {
	layer := r.Ctx.Layer
	layer.SwapSlots(layer.NullSlots())
	r.Ctx.SavedSlots = nil
	return nil
}

// Renegotiate resets the handshake state and restarts the run on a fresh
// trace: Actions when given, otherwise the run's renegotiation factory.
type Renegotiate struct {
	Status
	Actions []Action
}

func (a *Renegotiate) Kind() Kind { return KindRenegotiate }

func (a *Renegotiate) Execute(r *Run) error { return execute(a, r) }

func (a *Renegotiate) Apply(r *Run) error {
	r.Ctx.Renegotiate()
	next := a.Actions
	if next == nil {
		next = r.renegotiation(r.Ctx.Role())
	}
	r.restart, r.restarting = next, true
	return nil
}

// ForwardOnly passes bytes from the From side to the other untouched. It
// needs two connection ends and only a relay can run it.
type ForwardOnly struct {
	Status
	From common.Role
}

func (a *ForwardOnly) Kind() Kind { return KindForwardOnly }

func (a *ForwardOnly) Execute(r *Run) error { return execute(a, r) }

func (a *ForwardOnly) Apply(*Run) error {
	return errors.Wrap(common.ErrConfiguration, "forwarding needs a relay")
}

var (
	_ Action = (*Send)(nil)
	_ Action = (*Receive)(nil)
	_ Action = (*ChangeCipherSuite)(nil)
	_ Action = (*ChangeRandom)(nil)
	_ Action = (*ChangeProtocolVersion)(nil)
	_ Action = (*ChangePreMasterSecret)(nil)
	_ Action = (*ToggleEncryption)(nil)
	_ Action = (*DeactivateEncryption)(nil)
	_ Action = (*Renegotiate)(nil)
	_ Action = (*ForwardOnly)(nil)
)
