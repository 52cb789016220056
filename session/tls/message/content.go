package message

import (
	"bytes"

	"tlsflow/session/tls/alert"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/recordcipher"
	"tlsflow/session/tls/state"
)

// UnknownHandshake is a handshake message that is not understood or did
// not parse. Its body is kept as it is.
type UnknownHandshake struct {
	Handshake
	HandshakeType modvar.Var[HandshakeType]
	Body          modvar.Bytes
}

func (m *UnknownHandshake) Type() Type                   { return TypeUnknownHandshake }
func (m *UnknownHandshake) handshakeType() HandshakeType { return m.HandshakeType.Value() }

func (m *UnknownHandshake) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.Body.Value()), nil
}

func (m *UnknownHandshake) unmarshal(_ *state.Context, body []byte) error {
	m.Body.Set(bytes.Clone(body))
	return nil
}

func (m *UnknownHandshake) bind(from Message) {
	f := from.(*UnknownHandshake)
	m.bindHeader(f.header())
	m.HandshakeType.Set(f.HandshakeType.Original())
	m.Body.Set(f.Body.Original())
}

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.1
type ChangeCipherSpec struct {
	Base
	CCSType modvar.Uint8
}

func (m *ChangeCipherSpec) Type() Type                      { return TypeChangeCipherSpec }
func (m *ChangeCipherSpec) ContentType() common.ContentType { return common.ContentChangeCipherSpec }

func (m *ChangeCipherSpec) prepare(*state.Context) error {
	if !m.CCSType.IsSet() {
		m.CCSType.Set(1)
	}
	return nil
}

func (m *ChangeCipherSpec) marshal(*state.Context) ([]byte, error) {
	return []byte{m.CCSType.Value()}, nil
}

func (m *ChangeCipherSpec) unmarshal(_ *state.Context, b []byte) error {
	if len(b) != 1 {
		return malformed("change cipher spec")
	}
	m.CCSType.Set(b[0])
	return nil
}

// adjust starts reading under the pending cipher. Writing switches only
// once the message itself has left, see Commit.
func (m *ChangeCipherSpec) adjust(ctx *state.Context, dir Direction) error {
	if dir == Received {
		ctx.Layer.InstallRead(pending(ctx))
	}
	return nil
}

func (m *ChangeCipherSpec) commit(ctx *state.Context) {
	ctx.Layer.InstallWrite(pending(ctx))
}

func pending(ctx *state.Context) recordcipher.Cipher {
	if ctx.Pending == nil {
		return recordcipher.Null{}
	}
	return ctx.Pending
}

func (m *ChangeCipherSpec) bind(from Message) {
	m.CCSType.Set(from.(*ChangeCipherSpec).CCSType.Original())
}

// Alert defaults to a warning close_notify.
type Alert struct {
	Base
	Level       modvar.Var[alert.Level]
	Description modvar.Var[alert.Description]
}

func NewAlert(a alert.Alert) *Alert {
	m := &Alert{}
	m.Level.Set(a.Level)
	m.Description.Set(a.Description)
	return m
}

func (m *Alert) Type() Type                      { return TypeAlert }
func (m *Alert) ContentType() common.ContentType { return common.ContentAlert }

// Alert is the alert as it goes on the wire.
func (m *Alert) Alert() alert.Alert {
	return alert.Alert{Level: m.Level.Value(), Description: m.Description.Value()}
}

func (m *Alert) prepare(*state.Context) error {
	if !m.Level.IsSet() {
		m.Level.Set(alert.LevelWarning)
	}
	if !m.Description.IsSet() {
		m.Description.Set(alert.CloseNotify)
	}
	return nil
}

func (m *Alert) marshal(*state.Context) ([]byte, error) {
	return m.Alert().Bytes(), nil
}

func (m *Alert) unmarshal(_ *state.Context, b []byte) error {
	if len(b) != 2 {
		return malformed("alert")
	}
	a := alert.FromBytes([2]byte(b))
	m.Level.Set(a.Level)
	m.Description.Set(a.Description)
	return nil
}

func (m *Alert) bind(from Message) {
	f := from.(*Alert)
	m.Level.Set(f.Level.Original())
	m.Description.Set(f.Description.Original())
}

type ApplicationData struct {
	Base
	Data modvar.Bytes
}

func NewApplicationData(data []byte) *ApplicationData {
	m := &ApplicationData{}
	m.Data.Set(data)
	return m
}

func (m *ApplicationData) Type() Type                      { return TypeApplicationData }
func (m *ApplicationData) ContentType() common.ContentType { return common.ContentApplicationData }

func (m *ApplicationData) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.Data.Value()), nil
}

func (m *ApplicationData) unmarshal(_ *state.Context, b []byte) error {
	m.Data.Set(bytes.Clone(b))
	return nil
}

func (m *ApplicationData) bind(from Message) {
	m.Data.Set(from.(*ApplicationData).Data.Original())
}

// Unknown is content of a type the engine does not interpret, or content
// that did not parse.
type Unknown struct {
	Base
	Content modvar.Var[common.ContentType]
	Data    modvar.Bytes
}

func (m *Unknown) Type() Type { return TypeUnknown }

func (m *Unknown) ContentType() common.ContentType {
	if !m.Content.IsSet() {
		return common.ContentApplicationData
	}
	return m.Content.Value()
}

func (m *Unknown) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.Data.Value()), nil
}

func (m *Unknown) unmarshal(_ *state.Context, b []byte) error {
	m.Data.Set(bytes.Clone(b))
	return nil
}

func (m *Unknown) bind(from Message) {
	f := from.(*Unknown)
	if f.Content.IsSet() {
		m.Content.Set(f.Content.Original())
	}
	m.Data.Set(f.Data.Original())
}
