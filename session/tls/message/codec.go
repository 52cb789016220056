package message

import (
	"bytes"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/record"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
)

// Serialize renders m, preparing it first unless it carries peer values.
// The result is also kept in m.Common().Raw.
func Serialize(ctx *state.Context, m Message) ([]byte, error) {
	base := m.Common()
	if !base.fromWire {
		if err := m.prepare(ctx); err != nil {
			return nil, errors.Wrapf(err, "preparing %s", m.Type())
		}
	}

	out, err := m.marshal(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "serializing %s", m.Type())
	}
	if h, ok := m.(handshakeMessage); ok {
		out = frame(ctx, h, out)
	}

	base.Raw = out
	return out, nil
}

// Decode turns the plaintext of a group of records of one content type
// into messages. Handshake bytes not yet forming a whole message stay in
// the context until more arrive. Content that does not parse comes back
// as Unknown or UnknownHandshake, never as an error.
func Decode(ctx *state.Context, ct common.ContentType, data []byte, rs []*record.Record) []Message {
	switch ct {
	case common.ContentHandshake:
		return decodeHandshake(ctx, data, rs)

	case common.ContentChangeCipherSpec:
		out := make([]Message, 0, len(data))
		for i := range data {
			m := &ChangeCipherSpec{}
			_ = m.unmarshal(ctx, data[i:i+1])
			m.markReceived(bytes.Clone(data[i:i+1]), rs)
			out = append(out, m)
		}
		return out

	case common.ContentAlert:
		var out []Message
		for ; len(data) >= 2; data = data[2:] {
			m := &Alert{}
			_ = m.unmarshal(ctx, data[:2])
			m.markReceived(bytes.Clone(data[:2]), rs)
			out = append(out, m)
		}
		if len(data) > 0 {
			out = append(out, unknown(ct, data, rs))
		}
		return out

	case common.ContentApplicationData:
		m := &ApplicationData{}
		_ = m.unmarshal(ctx, data)
		m.markReceived(bytes.Clone(data), rs)
		return []Message{m}
	}

	return []Message{unknown(ct, data, rs)}
}

func unknown(ct common.ContentType, data []byte, rs []*record.Record) *Unknown {
	m := &Unknown{}
	m.Content.Set(ct)
	m.Data.Set(bytes.Clone(data))
	m.markReceived(bytes.Clone(data), rs)
	return m
}

// AdjustSent updates ctx after m was serialized for sending and appends it
// to the transcript.
func AdjustSent(ctx *state.Context, m Message) error {
	return adjust(ctx, m, Sent)
}

// AdjustReceived updates ctx after m was decoded and appends it to the
// transcript. Verification failures are returned but leave ctx updated.
func AdjustReceived(ctx *state.Context, m Message) error {
	return adjust(ctx, m, Received)
}

func adjust(ctx *state.Context, m Message, dir Direction) error {
	err := m.adjust(ctx, dir)
	if InTranscript(m) {
		ctx.AppendTranscript(m.Common().Raw)
	}
	if err != nil {
		return errors.Wrapf(err, "adjusting context to %s", m.Type())
	}
	return nil
}

// InTranscript reports whether m is hashed into Finished.
func InTranscript(m Message) bool {
	return m.ContentType() == common.ContentHandshake && m.Type() != TypeHelloRequest
}

// Commit applies what must wait until the records of m were written:
// a sent ChangeCipherSpec activates the pending cipher for writing.
func Commit(ctx *state.Context, m Message) {
	if ccs, ok := m.(*ChangeCipherSpec); ok {
		ccs.commit(ctx)
	}
}

// Matches reports whether observed can be bound onto configured.
func Matches(configured, observed Message) bool {
	if configured.Type() != observed.Type() {
		return false
	}
	if c, ok := configured.(*UnknownHandshake); ok && c.HandshakeType.IsSet() {
		return c.HandshakeType.Value() == observed.(*UnknownHandshake).HandshakeType.Value()
	}
	return true
}

// Bind copies the values observed on the wire onto configured, which keeps
// its modifications and flags. configured is sent as bound from then on.
func Bind(configured, observed Message) error {
	if !Matches(configured, observed) {
		return errors.Errorf("cannot bind %s onto %s", observed.Type(), configured.Type())
	}

	configured.bind(observed)
	c, o := configured.Common(), observed.Common()
	c.Raw = o.Raw
	c.fromWire = true
	return nil
}

// Fatal reports whether m is an alert ending the session.
func Fatal(m Message) bool {
	a, ok := m.(*Alert)
	return ok && a.Alert().Fatal()
}
