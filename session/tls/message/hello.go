package message

import (
	"bytes"
	"slices"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/state"

	"golang.org/x/crypto/cryptobyte"
)

// HelloRequest asks the client to start over. Its empty body is the
// renegotiation signal, and it never enters the transcript.
type HelloRequest struct{ Handshake }

func (m *HelloRequest) Type() Type                   { return TypeHelloRequest }
func (m *HelloRequest) handshakeType() HandshakeType { return HandshakeHelloRequest }
func (m *HelloRequest) marshal(*state.Context) ([]byte, error) {
	return []byte{}, nil
}

func (m *HelloRequest) unmarshal(_ *state.Context, b []byte) error {
	if len(b) != 0 {
		return malformed("hello request")
	}
	return nil
}

func (m *HelloRequest) bind(from Message) {
	m.bindHeader(from.(*HelloRequest).header())
}

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.1.2
type ClientHello struct {
	Handshake

	Version   modvar.Var[common.Version]
	Random    modvar.Bytes
	SessionID modvar.Bytes
	// Datagram only.
	Cookie             modvar.Bytes
	CipherSuites       modvar.Var[[]ciphersuite.ID]
	CompressionMethods modvar.Bytes
	// Extensions is the raw extension block without its length prefix.
	// A nil block is left out.
	Extensions modvar.Bytes
}

func (m *ClientHello) Type() Type                   { return TypeClientHello }
func (m *ClientHello) handshakeType() HandshakeType { return HandshakeClientHello }

func (m *ClientHello) prepare(ctx *state.Context) error {
	if !m.Version.IsSet() {
		m.Version.Set(ctx.Config.HighestVersion)
	}
	if !m.Random.IsSet() {
		r, err := ctx.NewRandom()
		if err != nil {
			return err
		}
		m.Random.Set(r)
	}
	if !m.SessionID.IsSet() {
		m.SessionID.Set([]byte{})
	}
	if !m.CipherSuites.IsSet() {
		m.CipherSuites.Set(ctx.Config.Suites)
	}
	if !m.CompressionMethods.IsSet() {
		m.CompressionMethods.Set([]byte{0})
	}
	return nil
}

func (m *ClientHello) marshal(ctx *state.Context) ([]byte, error) {
	return build(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Version.Value().Bytes())
		b.AddBytes(m.Random.Value())
		addUint8Vector(b, m.SessionID.Value())
		if ctx.Layer.Datagram() {
			addUint8Vector(b, m.Cookie.Value())
		}
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, id := range m.CipherSuites.Value() {
				b.AddBytes(id.Bytes())
			}
		})
		addUint8Vector(b, m.CompressionMethods.Value())
		addExtensions(b, m.Extensions)
	})
}

func (m *ClientHello) unmarshal(ctx *state.Context, body []byte) error {
	var (
		s                              = cryptobyte.String(body)
		version                        uint16
		random                         []byte
		sessionID, cookie, suites, cms cryptobyte.String
	)

	if !s.ReadUint16(&version) || !s.ReadBytes(&random, 32) || !s.ReadUint8LengthPrefixed(&sessionID) {
		return malformed("client hello")
	}
	if ctx.Layer.Datagram() && !s.ReadUint8LengthPrefixed(&cookie) {
		return malformed("client hello cookie")
	}
	if !s.ReadUint16LengthPrefixed(&suites) || len(suites)%2 != 0 || !s.ReadUint8LengthPrefixed(&cms) {
		return malformed("client hello")
	}
	ext, err := readExtensions(&s)
	if err != nil {
		return err
	}

	ids := make([]ciphersuite.ID, 0, len(suites)/2)
	for i := 0; i < len(suites); i += 2 {
		ids = append(ids, ciphersuite.ID{suites[i], suites[i+1]})
	}

	m.Version.Set(common.Version(version))
	m.Random.Set(bytes.Clone(random))
	m.SessionID.Set(bytes.Clone(sessionID))
	if ctx.Layer.Datagram() {
		m.Cookie.Set(bytes.Clone(cookie))
	}
	m.CipherSuites.Set(ids)
	m.CompressionMethods.Set(bytes.Clone(cms))
	m.Extensions.Set(ext)
	return nil
}

// adjust records the client random. A server also selects the version and
// the first of its suites that the client offered, falling back to the
// client's first choice.
func (m *ClientHello) adjust(ctx *state.Context, _ Direction) error {
	ctx.ClientRandom = bytes.Clone(m.Random.Value())
	if ctx.Role() != common.RoleServer {
		return nil
	}

	ctx.OfferedSessionID = bytes.Clone(m.SessionID.Value())
	ctx.SetVersion(common.MinVersion(m.Version.Value(), ctx.Config.HighestVersion))

	offered := m.CipherSuites.Value()
	for _, id := range ctx.Config.Suites {
		if slices.Contains(offered, id) {
			return ctx.SetSuite(id)
		}
	}
	if len(offered) > 0 {
		return ctx.SetSuite(offered[0])
	}
	return nil
}

func (m *ClientHello) bind(from Message) {
	f := from.(*ClientHello)
	m.bindHeader(f.header())
	m.Version.Set(f.Version.Original())
	m.Random.Set(f.Random.Original())
	m.SessionID.Set(f.SessionID.Original())
	if f.Cookie.IsSet() {
		m.Cookie.Set(f.Cookie.Original())
	}
	m.CipherSuites.Set(f.CipherSuites.Original())
	m.CompressionMethods.Set(f.CompressionMethods.Original())
	m.Extensions.Set(f.Extensions.Original())
}

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.1.3
type ServerHello struct {
	Handshake

	Version           modvar.Var[common.Version]
	Random            modvar.Bytes
	SessionID         modvar.Bytes
	CipherSuite       modvar.Var[ciphersuite.ID]
	CompressionMethod modvar.Uint8
	Extensions        modvar.Bytes
}

func (m *ServerHello) Type() Type                   { return TypeServerHello }
func (m *ServerHello) handshakeType() HandshakeType { return HandshakeServerHello }

func (m *ServerHello) prepare(ctx *state.Context) error {
	if !m.Version.IsSet() {
		m.Version.Set(ctx.Version)
	}
	if !m.Random.IsSet() {
		r, err := ctx.NewRandom()
		if err != nil {
			return err
		}
		m.Random.Set(r)
	}
	if !m.SessionID.IsSet() {
		if resumable(ctx, ctx.OfferedSessionID) {
			m.SessionID.Set(ctx.SessionID)
		} else {
			id, err := ctx.NewRandom()
			if err != nil {
				return err
			}
			m.SessionID.Set(id)
		}
	}
	if !m.CipherSuite.IsSet() {
		m.CipherSuite.Set(ctx.SuiteOrNull().ID())
	}
	if !m.CompressionMethod.IsSet() {
		m.CompressionMethod.Set(0)
	}
	return nil
}

func resumable(ctx *state.Context, id []byte) bool {
	return len(id) > 0 && bytes.Equal(id, ctx.SessionID) && len(ctx.MasterSecret) > 0
}

func (m *ServerHello) marshal(*state.Context) ([]byte, error) {
	return build(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Version.Value().Bytes())
		b.AddBytes(m.Random.Value())
		addUint8Vector(b, m.SessionID.Value())
		b.AddBytes(m.CipherSuite.Value().Bytes())
		b.AddUint8(m.CompressionMethod.Value())
		addExtensions(b, m.Extensions)
	})
}

func (m *ServerHello) unmarshal(_ *state.Context, body []byte) error {
	var (
		s         = cryptobyte.String(body)
		version   uint16
		random    []byte
		sessionID cryptobyte.String
		suite     uint16
		cm        uint8
	)

	if !s.ReadUint16(&version) || !s.ReadBytes(&random, 32) || !s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16(&suite) || !s.ReadUint8(&cm) {
		return malformed("server hello")
	}
	ext, err := readExtensions(&s)
	if err != nil {
		return err
	}

	m.Version.Set(common.Version(version))
	m.Random.Set(bytes.Clone(random))
	m.SessionID.Set(bytes.Clone(sessionID))
	m.CipherSuite.Set(ciphersuite.IDFromUint16(suite))
	m.CompressionMethod.Set(cm)
	m.Extensions.Set(ext)
	return nil
}

// adjust applies the negotiation outcome on both ends. A session id equal
// to the known one with a master secret at hand resumes that session.
func (m *ServerHello) adjust(ctx *state.Context, _ Direction) error {
	ctx.ServerRandom = bytes.Clone(m.Random.Value())
	ctx.SetVersion(m.Version.Value())

	sid := m.SessionID.Value()
	ctx.Resumption = resumable(ctx, sid)
	ctx.SessionID = bytes.Clone(sid)

	if err := ctx.SetSuite(m.CipherSuite.Value()); err != nil {
		return err
	}
	if ctx.Resumption {
		return ctx.RebuildPending()
	}
	return nil
}

func (m *ServerHello) bind(from Message) {
	f := from.(*ServerHello)
	m.bindHeader(f.header())
	m.Version.Set(f.Version.Original())
	m.Random.Set(f.Random.Original())
	m.SessionID.Set(f.SessionID.Original())
	m.CipherSuite.Set(f.CipherSuite.Original())
	m.CompressionMethod.Set(f.CompressionMethod.Original())
	m.Extensions.Set(f.Extensions.Original())
}

type ServerHelloDone struct{ Handshake }

func (m *ServerHelloDone) Type() Type                   { return TypeServerHelloDone }
func (m *ServerHelloDone) handshakeType() HandshakeType { return HandshakeServerHelloDone }
func (m *ServerHelloDone) marshal(*state.Context) ([]byte, error) {
	return []byte{}, nil
}

func (m *ServerHelloDone) unmarshal(_ *state.Context, b []byte) error {
	if len(b) != 0 {
		return malformed("server hello done")
	}
	return nil
}

func (m *ServerHelloDone) bind(from Message) {
	m.bindHeader(from.(*ServerHelloDone).header())
}
