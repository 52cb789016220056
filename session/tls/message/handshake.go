package message

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"tlsflow/lib/types"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/record"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

type HandshakeType uint8

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4
const (
	HandshakeHelloRequest       HandshakeType = 0
	HandshakeClientHello        HandshakeType = 1
	HandshakeServerHello        HandshakeType = 2
	HandshakeCertificate        HandshakeType = 11
	HandshakeServerKeyExchange  HandshakeType = 12
	HandshakeCertificateRequest HandshakeType = 13
	HandshakeServerHelloDone    HandshakeType = 14
	HandshakeCertificateVerify  HandshakeType = 15
	HandshakeClientKeyExchange  HandshakeType = 16
	HandshakeFinished           HandshakeType = 20
)

func (t HandshakeType) String() string { return "handshake(" + strconv.Itoa(int(t)) + ")" }

const (
	handshakeHeaderLen         = 4
	datagramHandshakeHeaderLen = 12
)

// Handshake is the framing shared by handshake messages.
type Handshake struct {
	Base

	// Length is recomputed from the body on every serialization; a
	// modification on it still applies.
	Length modvar.Uint32

	// Datagram only.
	MessageSeq modvar.Uint16
}

func (h *Handshake) ContentType() common.ContentType { return common.ContentHandshake }
func (h *Handshake) header() *Handshake              { return h }

func (h *Handshake) bindHeader(from *Handshake) {
	h.Length.Set(from.Length.Original())
	if from.MessageSeq.IsSet() {
		h.MessageSeq.Set(from.MessageSeq.Original())
	}
}

type handshakeMessage interface {
	Message
	handshakeType() HandshakeType
	header() *Handshake
}

func newHandshake(t HandshakeType) handshakeMessage {
	switch t {
	case HandshakeHelloRequest:
		return &HelloRequest{}
	case HandshakeClientHello:
		return &ClientHello{}
	case HandshakeServerHello:
		return &ServerHello{}
	case HandshakeCertificate:
		return &Certificate{}
	case HandshakeServerKeyExchange:
		return &ServerKeyExchange{}
	case HandshakeCertificateRequest:
		return &CertificateRequest{}
	case HandshakeServerHelloDone:
		return &ServerHelloDone{}
	case HandshakeCertificateVerify:
		return &CertificateVerify{}
	case HandshakeClientKeyExchange:
		return &ClientKeyExchange{}
	case HandshakeFinished:
		return &Finished{}
	}

	u := &UnknownHandshake{}
	u.HandshakeType.Set(t)
	return u
}

// frame prepends the handshake header to body.
func frame(ctx *state.Context, h handshakeMessage, body []byte) []byte {
	hdr := h.header()
	hdr.Length.Set(uint32(len(body)))
	length := types.NewUint24(hdr.Length.Value())

	out := make([]byte, 0, datagramHandshakeHeaderLen+len(body))
	out = append(out, uint8(h.handshakeType()))
	out = append(out, length.Bytes()...)

	if ctx.Layer.Datagram() {
		if !hdr.MessageSeq.IsSet() {
			hdr.MessageSeq.Set(ctx.SendMessageSeq)
			ctx.SendMessageSeq++
		}
		out = binary.BigEndian.AppendUint16(out, hdr.MessageSeq.Value())
		// Sent unfragmented: offset zero, fragment length equal to length.
		out = append(out, 0, 0, 0)
		out = append(out, length.Bytes()...)
	}

	return append(out, body...)
}

// decodeHandshake parses every complete message from the reassembly buffer
// of ctx followed by data. Bodies that do not parse become UnknownHandshake.
// Datagram fragments are not reassembled; a fragmented message is kept
// as UnknownHandshake.
func decodeHandshake(ctx *state.Context, data []byte, rs []*record.Record) []Message {
	buf := append(ctx.HandshakeBuffer, data...)

	headerLen := handshakeHeaderLen
	if ctx.Layer.Datagram() {
		headerLen = datagramHandshakeHeaderLen
	}

	var out []Message
	for len(buf) >= headerLen {
		length := types.Uint24From([3]uint8(buf[1:4]), false).Uint32()
		bodyLen := length
		fragmented := false
		if headerLen == datagramHandshakeHeaderLen {
			offset := types.Uint24From([3]uint8(buf[6:9]), false).Uint32()
			bodyLen = types.Uint24From([3]uint8(buf[9:12]), false).Uint32()
			fragmented = offset != 0 || bodyLen != length
		}
		if len(buf) < headerLen+int(bodyLen) {
			break
		}

		raw := bytes.Clone(buf[:headerLen+int(bodyLen)])
		buf = buf[headerLen+int(bodyLen):]

		t := HandshakeType(raw[0])
		var m handshakeMessage
		if fragmented {
			m = unknownHandshake(t, raw[headerLen:])
		} else {
			m = parseHandshake(ctx, t, raw[headerLen:])
		}

		hdr := m.header()
		hdr.Length.Set(length)
		if headerLen == datagramHandshakeHeaderLen {
			hdr.MessageSeq.Set(binary.BigEndian.Uint16(raw[4:6]))
			ctx.RecvMessageSeq++
		}
		hdr.markReceived(raw, rs)
		out = append(out, m)
	}

	ctx.HandshakeBuffer = bytes.Clone(buf)
	return out
}

func parseHandshake(ctx *state.Context, t HandshakeType, body []byte) handshakeMessage {
	m := newHandshake(t)
	if err := m.unmarshal(ctx, body); err != nil {
		return unknownHandshake(t, body)
	}
	return m
}

func unknownHandshake(t HandshakeType, body []byte) *UnknownHandshake {
	u := &UnknownHandshake{}
	u.HandshakeType.Set(t)
	u.Body.Set(bytes.Clone(body))
	return u
}

func malformed(what string) error {
	return errors.Wrapf(common.ErrParser, "malformed %s", what)
}

// build runs f on a fresh builder, reporting vectors that overflow their
// length prefix as configuration errors.
func build(f func(b *cryptobyte.Builder)) ([]byte, error) {
	var b cryptobyte.Builder
	f(&b)
	out, err := b.Bytes()
	if err != nil {
		return nil, errors.Wrap(common.ErrConfiguration, err.Error())
	}
	return out, nil
}

func addUint8Vector(b *cryptobyte.Builder, v []byte) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

func addUint16Vector(b *cryptobyte.Builder, v []byte) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

// addExtensions writes the raw extension block, if any.
func addExtensions(b *cryptobyte.Builder, ext modvar.Bytes) {
	if v := ext.Value(); v != nil {
		addUint16Vector(b, v)
	}
}

// readExtensions reads the optional extension block closing a hello.
func readExtensions(s *cryptobyte.String) ([]byte, error) {
	if s.Empty() {
		return nil, nil
	}

	var ext cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&ext) || !s.Empty() {
		return nil, malformed("extensions")
	}
	return append([]byte{}, ext...), nil
}
