// Package recordcipher transforms record fragments under the negotiated
// cipher suite. A Cipher holds both directions of one connection end:
// it protects with the local role's write keys and opens with the peer's.
package recordcipher

import (
	"crypto/hmac"
	"crypto/rand"
	"hash"
	"io"

	"tlsflow/session/tls/alert"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"

	"github.com/pkg/errors"
)

type Direction uint8

const (
	// Write is the local role's sending direction.
	Write Direction = iota
	Read
)

// AdditionalData is the record context authenticated along with a fragment.
// For datagram versions Seq already carries the epoch in its top 16 bits.
type AdditionalData struct {
	Seq     uint64
	Type    common.ContentType
	Version common.Version
}

// Bytes serializes seq_num + type + version + length.
func (ad AdditionalData) Bytes(length int) []byte {
	b := make([]byte, 0, 13)
	b = append(b, common.ToBigEndianBytes(ad.Seq, 8)...)
	b = append(b, uint8(ad.Type))
	b = append(b, ad.Version.Bytes()...)
	return append(b, common.ToBigEndianBytes(uint64(length), 2)...)
}

type Cipher interface {
	Kind() ciphersuite.Kind
	Encrypt(ad AdditionalData, plaintext []byte) ([]byte, error)
	Decrypt(ad AdditionalData, ciphertext []byte) ([]byte, error)
	MAC(dir Direction, ad AdditionalData, data []byte) ([]byte, error)
	// PaddingLength is the smallest k >= 1 making n+k block aligned.
	PaddingLength(n int) (int, error)
	// Padding returns k bytes of value k-1.
	Padding(k int) ([]byte, error)

	isCipher()
}

type Params struct {
	Role    common.Role
	Version common.Version
	// Suite is nil before a suite is negotiated.
	Suite *ciphersuite.Suite

	MasterSecret               []byte
	ClientRandom, ServerRandom []byte

	// Rand feeds explicit IVs. Defaults to crypto/rand.
	Rand io.Reader
}

// New picks the variant from the suite's cipher kind and derives its keys.
func New(p Params) (Cipher, error) {
	if p.Suite == nil || p.Suite.Kind() == ciphersuite.KindNull {
		return Null{}, nil
	}
	if p.Rand == nil {
		p.Rand = rand.Reader
	}
	if len(p.MasterSecret) == 0 {
		return nil, errors.Wrap(common.ErrConfiguration, "no master secret to derive keys from")
	}

	keys := DeriveKeys(p.Version, *p.Suite, p.MasterSecret, p.ClientRandom, p.ServerRandom)
	local, peer := keys.split(p.Role)

	var (
		c   Cipher
		err error
	)
	switch p.Suite.Kind() {
	case ciphersuite.KindBlock:
		c, err = newBlock(p, local, peer)
	case ciphersuite.KindStream:
		c, err = newStream(p, local, peer)
	case ciphersuite.KindAEAD:
		c, err = newAEAD(p, local, peer)
	default:
		err = errors.Wrapf(common.ErrNotSupported, "cipher kind %s", p.Suite.Kind())
	}

	if err != nil {
		return nil, errors.Wrapf(err, "building %s cipher", p.Suite.Name())
	}
	return c, nil
}

type directionKeys struct {
	mac, key, iv []byte
}

// split returns the local write keys and the peer's write keys.
func (k Keys) split(role common.Role) (local, peer directionKeys) {
	client := directionKeys{k.ClientMAC, k.ClientKey, k.ClientIV}
	server := directionKeys{k.ServerMAC, k.ServerKey, k.ServerIV}
	if role == common.RoleServer {
		return server, client
	}
	return client, server
}

// macer computes record MACs for both directions.
type macer struct {
	write, read hash.Hash
}

func newMacer(p Params, local, peer directionKeys) macer {
	h := p.Suite.MAC().New
	return macer{write: hmac.New(h, local.mac), read: hmac.New(h, peer.mac)}
}

func (m macer) compute(dir Direction, ad AdditionalData, data []byte) []byte {
	h := m.write
	if dir == Read {
		h = m.read
	}

	h.Reset()
	h.Write(ad.Bytes(len(data)))
	h.Write(data)
	return h.Sum(nil)
}

func (m macer) size() int { return m.write.Size() }

func badRecordMAC(msg string) error {
	return alert.NewError(errors.Wrap(common.ErrCrypto, msg), alert.BadRecordMAC)
}

func notSupported(what string, kind ciphersuite.Kind) error {
	return errors.Wrapf(common.ErrNotSupported, "%s with %s cipher", what, kind)
}
