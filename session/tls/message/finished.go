package message

import (
	"bytes"
	"crypto/subtle"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
)

var ErrVerifyData = errors.New("finished verify data mismatch")

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.9
type Finished struct {
	Handshake
	VerifyData modvar.Bytes
}

func (m *Finished) Type() Type                   { return TypeFinished }
func (m *Finished) handshakeType() HandshakeType { return HandshakeFinished }

func (m *Finished) prepare(ctx *state.Context) error {
	if !m.VerifyData.IsSet() {
		m.VerifyData.Set(ctx.VerifyData(ctx.Role()))
	}
	return nil
}

func (m *Finished) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.VerifyData.Value()), nil
}

func (m *Finished) unmarshal(_ *state.Context, body []byte) error {
	m.VerifyData.Set(bytes.Clone(body))
	return nil
}

// adjust stores the verify data of the sending role. A received value that
// does not match the transcript is reported, not rejected.
func (m *Finished) adjust(ctx *state.Context, dir Direction) error {
	role := ctx.Role()
	if dir == Received {
		role = role.Opposite()
	}

	got := bytes.Clone(m.VerifyData.Value())
	var err error
	if dir == Received {
		if want := ctx.VerifyData(role); subtle.ConstantTimeCompare(want, got) != 1 {
			err = errors.Wrapf(ErrVerifyData, "%s finished", role)
		}
	}

	if role == common.RoleClient {
		ctx.ClientVerifyData = got
	} else {
		ctx.ServerVerifyData = got
	}
	return err
}

func (m *Finished) bind(from Message) {
	f := from.(*Finished)
	m.bindHeader(f.header())
	m.VerifyData.Set(f.VerifyData.Original())
}
