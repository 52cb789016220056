package message

import (
	"bytes"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/state"

	"golang.org/x/crypto/cryptobyte"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.2
type Certificate struct {
	Handshake

	// DER encoded, leaf first.
	Certificates modvar.Var[[][]byte]
}

func (m *Certificate) Type() Type                   { return TypeCertificate }
func (m *Certificate) handshakeType() HandshakeType { return HandshakeCertificate }

func (m *Certificate) prepare(ctx *state.Context) error {
	if !m.Certificates.IsSet() {
		var certs [][]byte
		if ctx.Role() == common.RoleServer {
			certs = ctx.Config.Certificates
		}
		m.Certificates.Set(certs)
	}
	return nil
}

func (m *Certificate) marshal(*state.Context) ([]byte, error) {
	return build(func(b *cryptobyte.Builder) {
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, cert := range m.Certificates.Value() {
				b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes(cert)
				})
			}
		})
	})
}

func (m *Certificate) unmarshal(_ *state.Context, body []byte) error {
	var (
		s    = cryptobyte.String(body)
		list cryptobyte.String
	)
	if !s.ReadUint24LengthPrefixed(&list) || !s.Empty() {
		return malformed("certificate list")
	}

	var certs [][]byte
	for !list.Empty() {
		var cert cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&cert) {
			return malformed("certificate")
		}
		certs = append(certs, bytes.Clone(cert))
	}

	m.Certificates.Set(certs)
	return nil
}

// adjust takes the peer's public key from the received leaf.
func (m *Certificate) adjust(ctx *state.Context, dir Direction) error {
	if dir != Received {
		return nil
	}
	return ctx.SetPeerCertificates(m.Certificates.Value())
}

func (m *Certificate) bind(from Message) {
	f := from.(*Certificate)
	m.bindHeader(f.header())
	m.Certificates.Set(f.Certificates.Original())
}

// CertificateRequest is carried opaquely; client authentication is not
// performed.
type CertificateRequest struct {
	Handshake
	Body modvar.Bytes
}

func (m *CertificateRequest) Type() Type                   { return TypeCertificateRequest }
func (m *CertificateRequest) handshakeType() HandshakeType { return HandshakeCertificateRequest }

func (m *CertificateRequest) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.Body.Value()), nil
}

func (m *CertificateRequest) unmarshal(_ *state.Context, body []byte) error {
	m.Body.Set(bytes.Clone(body))
	return nil
}

func (m *CertificateRequest) bind(from Message) {
	f := from.(*CertificateRequest)
	m.bindHeader(f.header())
	m.Body.Set(f.Body.Original())
}

// CertificateVerify is carried opaquely, like CertificateRequest.
type CertificateVerify struct {
	Handshake
	Body modvar.Bytes
}

func (m *CertificateVerify) Type() Type                   { return TypeCertificateVerify }
func (m *CertificateVerify) handshakeType() HandshakeType { return HandshakeCertificateVerify }

func (m *CertificateVerify) marshal(*state.Context) ([]byte, error) {
	return bytes.Clone(m.Body.Value()), nil
}

func (m *CertificateVerify) unmarshal(_ *state.Context, body []byte) error {
	m.Body.Set(bytes.Clone(body))
	return nil
}

func (m *CertificateVerify) bind(from Message) {
	f := from.(*CertificateVerify)
	m.bindHeader(f.header())
	m.Body.Set(f.Body.Original())
}
