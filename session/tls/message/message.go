// Package message implements the protocol messages a workflow sends and
// receives. Every wire field is a modifiable variable; fields left unset
// are filled from the connection state when the message is prepared.
package message

import (
	"fmt"
	"log/slog"
	"strings"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/record"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
)

// Type discriminates the message variants.
type Type uint8

const (
	TypeHelloRequest Type = iota + 1
	TypeClientHello
	TypeServerHello
	TypeCertificate
	TypeServerKeyExchange
	TypeCertificateRequest
	TypeServerHelloDone
	TypeCertificateVerify
	TypeClientKeyExchange
	TypeFinished
	TypeUnknownHandshake
	TypeChangeCipherSpec
	TypeAlert
	TypeApplicationData
	TypeUnknown
)

var typeNames = map[Type]string{
	TypeHelloRequest:       "HelloRequest",
	TypeClientHello:        "ClientHello",
	TypeServerHello:        "ServerHello",
	TypeCertificate:        "Certificate",
	TypeServerKeyExchange:  "ServerKeyExchange",
	TypeCertificateRequest: "CertificateRequest",
	TypeServerHelloDone:    "ServerHelloDone",
	TypeCertificateVerify:  "CertificateVerify",
	TypeClientKeyExchange:  "ClientKeyExchange",
	TypeFinished:           "Finished",
	TypeUnknownHandshake:   "UnknownHandshake",
	TypeChangeCipherSpec:   "ChangeCipherSpec",
	TypeAlert:              "Alert",
	TypeApplicationData:    "ApplicationData",
	TypeUnknown:            "Unknown",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, errors.Wrapf(common.ErrConfiguration, "unknown message type %q", s)
}

// Direction tells context adjustment which way a message went.
type Direction uint8

const (
	Sent Direction = iota
	Received
)

// Message is one protocol message. The set of implementations is closed.
type Message interface {
	Type() Type
	ContentType() common.ContentType
	Common() *Base

	// prepare fills unset fields from ctx.
	prepare(ctx *state.Context) error
	// marshal renders the content, without handshake framing.
	marshal(ctx *state.Context) ([]byte, error)
	// unmarshal reads the content, without handshake framing.
	unmarshal(ctx *state.Context, b []byte) error
	// adjust updates ctx once the message was sent or received.
	adjust(ctx *state.Context, dir Direction) error
	// bind copies the wire values of from, keeping modifications.
	bind(from Message)
}

// Base carries what every message has besides its fields.
type Base struct {
	// Raw is the complete message as last sent or received.
	Raw []byte
	// Records the message was sent in, or received in. Configured records
	// shape how the message is framed when sent.
	Records []*record.Record

	// Skip leaves the message out when sending.
	Skip bool
	// Modify passes the serialized message through the executor's modify
	// callback before it is sent.
	Modify bool

	fromWire bool
}

func (b *Base) Common() *Base { return b }

// FromWire reports whether the fields hold values received from a peer.
// Such messages are sent as they are instead of being prepared.
func (b *Base) FromWire() bool { return b.fromWire }

func (b *Base) prepare(*state.Context) error           { return nil }
func (b *Base) adjust(*state.Context, Direction) error { return nil }
func (b *Base) unmarshal(*state.Context, []byte) error { return nil }
func (b *Base) marshal(*state.Context) ([]byte, error) { return nil, nil }

func (b *Base) markReceived(raw []byte, rs []*record.Record) {
	b.Raw, b.Records, b.fromWire = raw, rs, true
}

// New returns an empty message of type t.
func New(t Type) (Message, error) {
	switch t {
	case TypeHelloRequest:
		return &HelloRequest{}, nil
	case TypeClientHello:
		return &ClientHello{}, nil
	case TypeServerHello:
		return &ServerHello{}, nil
	case TypeCertificate:
		return &Certificate{}, nil
	case TypeServerKeyExchange:
		return &ServerKeyExchange{}, nil
	case TypeCertificateRequest:
		return &CertificateRequest{}, nil
	case TypeServerHelloDone:
		return &ServerHelloDone{}, nil
	case TypeCertificateVerify:
		return &CertificateVerify{}, nil
	case TypeClientKeyExchange:
		return &ClientKeyExchange{}, nil
	case TypeFinished:
		return &Finished{}, nil
	case TypeUnknownHandshake:
		return &UnknownHandshake{}, nil
	case TypeChangeCipherSpec:
		return &ChangeCipherSpec{}, nil
	case TypeAlert:
		return &Alert{}, nil
	case TypeApplicationData:
		return &ApplicationData{}, nil
	case TypeUnknown:
		return &Unknown{}, nil
	}
	return nil, errors.Wrapf(common.ErrConfiguration, "no message of %s", t)
}

// MustNew is New for types known to exist.
func MustNew(t Type) Message {
	m, err := New(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Types lists the types of ms in order.
func Types(ms []Message) []Type {
	out := make([]Type, len(ms))
	for i, m := range ms {
		out[i] = m.Type()
	}
	return out
}

// TypeNames is Types as strings, for logging.
func TypeNames(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Type().String()
	}
	return out
}
