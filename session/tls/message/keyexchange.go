package message

import (
	"bytes"
	"crypto/rsa"
	"io"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/common/keyexchange"
	"tlsflow/session/tls/common/signature"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/recordcipher"
	"tlsflow/session/tls/state"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

var ErrSignature = errors.New("server key exchange signature does not verify")

// ServerKeyExchange carries ephemeral ECDH parameters signed with the
// server's certificate key.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8422#section-5.4
type ServerKeyExchange struct {
	Handshake

	Group     modvar.Var[keyexchange.GroupID]
	PublicKey modvar.Bytes
	// SignatureScheme is on the wire from TLS 1.2 on.
	SignatureScheme modvar.Var[signature.Scheme]
	Signature       modvar.Bytes
}

func (m *ServerKeyExchange) Type() Type                   { return TypeServerKeyExchange }
func (m *ServerKeyExchange) handshakeType() HandshakeType { return HandshakeServerKeyExchange }

func (m *ServerKeyExchange) params() keyexchange.ServerParams {
	return keyexchange.ServerParams{Group: m.Group.Value(), Public: m.PublicKey.Value()}
}

func (m *ServerKeyExchange) signed(ctx *state.Context) []byte {
	return concat(ctx.ClientRandom, ctx.ServerRandom, m.params().Bytes())
}

func (m *ServerKeyExchange) prepare(ctx *state.Context) error {
	if !m.Group.IsSet() {
		m.Group.Set(keyexchange.Group_X25519)
	}
	if !m.PublicKey.IsSet() {
		g, ok := keyexchange.Get(m.Group.Value())
		if !ok {
			return errors.Wrapf(common.ErrConfiguration, "unsupported group %s", m.Group.Value())
		}
		priv, pub, err := g.KeyExchange().GenKeyPair(ctx.Rand())
		if err != nil {
			return errors.Wrap(common.ErrCrypto, err.Error())
		}
		ctx.KeyExchangeGroup, ctx.KeyExchangePrivate = g.ID(), priv
		m.PublicKey.Set(pub)
	}

	if m.Signature.IsSet() {
		return nil
	}
	if !ctx.Version.SHA256PRF() {
		sig, err := signature.SignLegacy(ctx.Rand(), m.signed(ctx), ctx.Config.PrivateKey)
		if err != nil {
			return errors.Wrap(common.ErrConfiguration, err.Error())
		}
		m.Signature.Set(sig)
		return nil
	}

	algo, err := signature.ForKey(ctx.Config.PrivateKey)
	if err != nil {
		return errors.Wrap(common.ErrConfiguration, err.Error())
	}
	sig, err := algo.Sign(ctx.Rand(), m.signed(ctx), ctx.Config.PrivateKey)
	if err != nil {
		return errors.Wrap(common.ErrCrypto, err.Error())
	}
	if !m.SignatureScheme.IsSet() {
		m.SignatureScheme.Set(algo.ID())
	}
	m.Signature.Set(sig)
	return nil
}

func (m *ServerKeyExchange) marshal(ctx *state.Context) ([]byte, error) {
	return build(func(b *cryptobyte.Builder) {
		b.AddBytes(m.params().Bytes())
		if ctx.Version.SHA256PRF() {
			b.AddBytes(signature.Signed{Scheme: m.SignatureScheme.Value(), Signature: m.Signature.Value()}.Bytes())
		} else {
			addUint16Vector(b, m.Signature.Value())
		}
	})
}

func (m *ServerKeyExchange) unmarshal(ctx *state.Context, body []byte) error {
	s := cryptobyte.String(body)
	params, err := keyexchange.ParseServerParams(&s)
	if err != nil {
		return errors.Wrap(common.ErrParser, err.Error())
	}

	if ctx.Version.SHA256PRF() {
		signed, ok := signature.ParseSigned(&s)
		if !ok {
			return malformed("server key exchange signature")
		}
		m.SignatureScheme.Set(signed.Scheme)
		m.Signature.Set(signed.Signature)
	} else {
		var sig cryptobyte.String
		if !s.ReadUint16LengthPrefixed(&sig) {
			return malformed("server key exchange signature")
		}
		m.Signature.Set(bytes.Clone(sig))
	}
	if !s.Empty() {
		return malformed("server key exchange")
	}

	m.Group.Set(params.Group)
	m.PublicKey.Set(params.Public)
	return nil
}

// adjust keeps the server's share on the client, which also checks the
// signature against the certificate key. A bad signature is reported but
// the share is still taken.
func (m *ServerKeyExchange) adjust(ctx *state.Context, dir Direction) error {
	if dir != Received {
		return nil
	}

	ctx.KeyExchangeGroup = m.Group.Value()
	ctx.PeerKeyShare = bytes.Clone(m.PublicKey.Value())
	if ctx.PeerPublicKey == nil {
		return nil
	}

	var err error
	if ctx.Version.SHA256PRF() {
		algo, ok := signature.Get(m.SignatureScheme.Value())
		if !ok {
			return errors.Wrapf(ErrSignature, "unknown scheme %s", m.SignatureScheme.Value())
		}
		err = algo.Verify(m.signed(ctx), m.Signature.Value(), ctx.PeerPublicKey)
	} else {
		err = signature.VerifyLegacy(m.signed(ctx), m.Signature.Value(), ctx.PeerPublicKey)
	}
	if err != nil {
		return errors.Wrap(ErrSignature, err.Error())
	}
	return nil
}

func (m *ServerKeyExchange) bind(from Message) {
	f := from.(*ServerKeyExchange)
	m.bindHeader(f.header())
	m.Group.Set(f.Group.Original())
	m.PublicKey.Set(f.PublicKey.Original())
	if f.SignatureScheme.IsSet() {
		m.SignatureScheme.Set(f.SignatureScheme.Original())
	}
	m.Signature.Set(f.Signature.Original())
}

// ClientKeyExchange carries the RSA encrypted pre-master secret or the
// client's ephemeral public key, depending on the suite's key exchange.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.7
type ClientKeyExchange struct {
	Handshake

	ExchangeKeys modvar.Bytes

	// PreMasterSecret is the secret behind ExchangeKeys. It is not sent.
	PreMasterSecret []byte
}

func (m *ClientKeyExchange) Type() Type                   { return TypeClientKeyExchange }
func (m *ClientKeyExchange) handshakeType() HandshakeType { return HandshakeClientKeyExchange }

func ephemeral(ctx *state.Context) bool {
	return ctx.SuiteOrNull().KeyExchange() == ciphersuite.KeyExchangeECDHE_RSA
}

func (m *ClientKeyExchange) prepare(ctx *state.Context) error {
	if m.ExchangeKeys.IsSet() {
		return nil
	}

	if ephemeral(ctx) {
		g, ok := keyexchange.Get(ctx.KeyExchangeGroup)
		if !ok {
			return errors.Wrapf(common.ErrConfiguration, "unsupported group %s", ctx.KeyExchangeGroup)
		}
		pub, shared, err := keyexchange.Respond(g, ctx.Rand(), ctx.PeerKeyShare)
		if err != nil {
			return errors.Wrap(common.ErrCrypto, err.Error())
		}
		m.PreMasterSecret = shared
		m.ExchangeKeys.Set(pub)
		return nil
	}

	if m.PreMasterSecret == nil {
		pre, err := newPreMaster(ctx.Rand(), ctx.Config.HighestVersion)
		if err != nil {
			return err
		}
		m.PreMasterSecret = pre
	}

	pub, ok := ctx.PeerPublicKey.(*rsa.PublicKey)
	if !ok {
		m.ExchangeKeys.Set(bytes.Clone(m.PreMasterSecret))
		return nil
	}
	enc, err := rsa.EncryptPKCS1v15(ctx.Rand(), pub, m.PreMasterSecret)
	if err != nil {
		return errors.Wrap(common.ErrCrypto, err.Error())
	}
	m.ExchangeKeys.Set(enc)
	return nil
}

// newPreMaster is the client version followed by 46 random bytes.
func newPreMaster(rand io.Reader, v common.Version) ([]byte, error) {
	pre := make([]byte, recordcipher.MasterSecretLen)
	copy(pre, v.Bytes())
	if _, err := io.ReadFull(rand, pre[2:]); err != nil {
		return nil, errors.Wrap(common.ErrCrypto, "generating pre-master secret")
	}
	return pre, nil
}

func (m *ClientKeyExchange) marshal(ctx *state.Context) ([]byte, error) {
	return build(func(b *cryptobyte.Builder) {
		if ephemeral(ctx) {
			addUint8Vector(b, m.ExchangeKeys.Value())
		} else {
			addUint16Vector(b, m.ExchangeKeys.Value())
		}
	})
}

func (m *ClientKeyExchange) unmarshal(ctx *state.Context, body []byte) error {
	var (
		s    = cryptobyte.String(body)
		keys cryptobyte.String
		ok   bool
	)
	if ephemeral(ctx) {
		ok = s.ReadUint8LengthPrefixed(&keys)
	} else {
		ok = s.ReadUint16LengthPrefixed(&keys)
	}
	if !ok || !s.Empty() {
		return malformed("client key exchange")
	}

	m.ExchangeKeys.Set(bytes.Clone(keys))
	return nil
}

// adjust settles the pre-master secret and derives the pending keys.
// A server that cannot recover the secret continues with a random one,
// or with the raw bytes when it has no key to decrypt them.
func (m *ClientKeyExchange) adjust(ctx *state.Context, dir Direction) error {
	if dir == Received && m.PreMasterSecret == nil {
		pre, err := m.recover(ctx)
		if err != nil {
			return err
		}
		m.PreMasterSecret = pre
	}

	ctx.PreMasterSecret = bytes.Clone(m.PreMasterSecret)
	return ctx.DeriveSecrets()
}

func (m *ClientKeyExchange) recover(ctx *state.Context) ([]byte, error) {
	keys := m.ExchangeKeys.Value()

	if ephemeral(ctx) {
		g, ok := keyexchange.Get(ctx.KeyExchangeGroup)
		if ok && ctx.KeyExchangePrivate != nil {
			if shared, err := g.KeyExchange().GenSharedSecret(ctx.KeyExchangePrivate, keys); err == nil {
				return shared, nil
			}
		}
		return newPreMaster(ctx.Rand(), ctx.Version)
	}

	priv, ok := ctx.Config.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return bytes.Clone(keys), nil
	}
	if pre, err := rsa.DecryptPKCS1v15(ctx.Rand(), priv, keys); err == nil {
		return pre, nil
	}
	return newPreMaster(ctx.Rand(), ctx.Version)
}

func (m *ClientKeyExchange) bind(from Message) {
	f := from.(*ClientKeyExchange)
	m.bindHeader(f.header())
	m.ExchangeKeys.Set(f.ExchangeKeys.Original())
	m.PreMasterSecret = bytes.Clone(f.PreMasterSecret)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
