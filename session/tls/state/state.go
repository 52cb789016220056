// Package state holds everything one connection end has negotiated.
package state

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"io"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/common/keyexchange"
	"tlsflow/session/tls/record"
	"tlsflow/session/tls/recordcipher"
	"tlsflow/transport"

	"github.com/pkg/errors"
)

const RandomLen = 32

// Config is what a context starts from before negotiation.
type Config struct {
	Role common.Role

	// HighestVersion is offered by clients and accepted by servers.
	HighestVersion common.Version
	// Suites in preference order.
	Suites []ciphersuite.ID

	// Server identity. Certificates are DER encoded, leaf first.
	Certificates [][]byte
	PrivateKey   crypto.PrivateKey

	Rand io.Reader
}

type Context struct {
	Config Config

	Version common.Version // selected
	Suite   *ciphersuite.Suite

	ClientRandom, ServerRandom []byte
	SessionID                  []byte
	// OfferedSessionID is what the client proposed for resumption.
	OfferedSessionID []byte

	PreMasterSecret []byte
	MasterSecret    []byte

	PeerCertificates [][]byte
	PeerPublicKey    crypto.PublicKey

	// Ephemeral key exchange state.
	KeyExchangeGroup   keyexchange.GroupID
	KeyExchangePrivate []byte
	PeerKeyShare       []byte

	ClientVerifyData, ServerVerifyData []byte

	Transcript []byte

	// Pending is built once keys are derived and installed into a record
	// layer slot by ChangeCipherSpec.
	Pending recordcipher.Cipher

	// Slots saved by toggling encryption off.
	SavedSlots *[2]record.Slot

	Layer *record.Layer
	Port  transport.Port

	Resumption bool

	// Handshake bytes received but not yet forming a whole message.
	HandshakeBuffer []byte
	// DTLS message_seq counters.
	SendMessageSeq, RecvMessageSeq uint16
}

func New(cfg Config, port transport.Port) *Context {
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.HighestVersion == 0 {
		cfg.HighestVersion = common.VersionTLS12
	}

	return &Context{
		Config:  cfg,
		Version: cfg.HighestVersion,
		Layer:   record.NewLayer(cfg.HighestVersion.IsDTLS()),
		Port:    port,
	}
}

func (c *Context) Role() common.Role { return c.Config.Role }
func (c *Context) Rand() io.Reader   { return c.Config.Rand }

// RecordVersion is the version stamped on outgoing records.
func (c *Context) RecordVersion() common.Version { return c.Version }

// SetVersion changes the selected version, keeping the record framing in step.
func (c *Context) SetVersion(v common.Version) {
	c.Version = v
	c.Layer.SetDatagram(v.IsDTLS())
}

func (c *Context) SetSuite(id ciphersuite.ID) error {
	s, ok := ciphersuite.Get(id)
	if !ok {
		return errors.Wrapf(common.ErrConfiguration, "unknown cipher suite %s", id)
	}
	c.Suite = &s
	return nil
}

// SuiteOrNull is the selected suite, or TLS_NULL_WITH_NULL_NULL.
func (c *Context) SuiteOrNull() ciphersuite.Suite {
	if c.Suite != nil {
		return *c.Suite
	}
	s, _ := ciphersuite.Get(ciphersuite.TLS_NULL_WITH_NULL_NULL)
	return s
}

func (c *Context) AppendTranscript(b []byte) {
	c.Transcript = append(c.Transcript, b...)
}

// TranscriptHash digests the transcript for Finished.
func (c *Context) TranscriptHash() []byte {
	return recordcipher.TranscriptHash(c.Version, c.SuiteOrNull(), c.Transcript)
}

func (c *Context) NewRandom() ([]byte, error) {
	b := make([]byte, RandomLen)
	if _, err := io.ReadFull(c.Rand(), b); err != nil {
		return nil, errors.Wrap(common.ErrCrypto, "generating random")
	}
	return b, nil
}

// DeriveSecrets computes the master secret from the pre-master secret
// and builds the pending cipher. Resumed sessions keep their master secret.
func (c *Context) DeriveSecrets() error {
	if !c.Resumption || len(c.MasterSecret) == 0 {
		if len(c.PreMasterSecret) == 0 {
			return errors.Wrap(common.ErrConfiguration, "no pre-master secret")
		}
		c.MasterSecret = recordcipher.MasterSecret(c.Version, c.SuiteOrNull(), c.PreMasterSecret, c.ClientRandom, c.ServerRandom)
	}

	return c.RebuildPending()
}

// RebuildPending replaces the pending cipher from the current secrets.
func (c *Context) RebuildPending() error {
	pending, err := recordcipher.New(recordcipher.Params{
		Role:         c.Role(),
		Version:      c.Version,
		Suite:        c.Suite,
		MasterSecret: c.MasterSecret,
		ClientRandom: c.ClientRandom,
		ServerRandom: c.ServerRandom,
		Rand:         c.Rand(),
	})
	if err != nil {
		return err
	}

	c.Pending = pending
	return nil
}

// VerifyData computes the Finished payload of role over the transcript so far.
func (c *Context) VerifyData(role common.Role) []byte {
	return recordcipher.VerifyData(c.Version, c.SuiteOrNull(), c.MasterSecret, role, c.Transcript)
}

// SetPeerCertificates stores the chain and extracts the leaf public key.
// The chain itself is not validated.
func (c *Context) SetPeerCertificates(certs [][]byte) error {
	c.PeerCertificates = certs
	c.PeerPublicKey = nil
	if len(certs) == 0 {
		return nil
	}

	leaf, err := x509.ParseCertificate(certs[0])
	if err != nil {
		return errors.Wrap(common.ErrParser, err.Error())
	}
	c.PeerPublicKey = leaf.PublicKey
	return nil
}

// Renegotiate prepares for a new handshake on the same connection. The
// active record protection stays in place until the new ChangeCipherSpec.
func (c *Context) Renegotiate() {
	c.Transcript = nil
	c.Resumption = false
	c.HandshakeBuffer = nil
	c.SendMessageSeq, c.RecvMessageSeq = 0, 0
	c.PreMasterSecret = nil
	c.KeyExchangePrivate, c.PeerKeyShare = nil, nil
}
