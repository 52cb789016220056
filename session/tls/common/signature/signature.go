// Package signature signs and verifies the digitally-signed elements of
// key exchange messages.
package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

type Algorithm struct {
	id     Scheme
	signer Signer
	hash   crypto.Hash
}

func (a Algorithm) ID() Scheme        { return a.id }
func (a Algorithm) Hash() crypto.Hash { return a.hash }

func (a Algorithm) digest(data []byte) []byte {
	h := a.hash.New()
	h.Write(data)
	return h.Sum(nil)
}

func (a Algorithm) Sign(rand io.Reader, data []byte, privKey crypto.PrivateKey) (out []byte, err error) {
	if out, err = a.signer.Sign(rand, a.digest(data), a.hash, privKey); err != nil {
		return nil, errors.Wrap(err, "signing data")
	}

	return out, nil
}

func (a Algorithm) Verify(data, signature []byte, publicKey crypto.PublicKey) (err error) {
	if err = a.signer.Verify(a.digest(data), signature, a.hash, publicKey); err != nil {
		return errors.Wrap(err, "verifying data")
	}

	return nil
}

func NewAlgorithm(id Scheme, signer Signer, hash crypto.Hash) Algorithm {
	return Algorithm{
		id:     id,
		signer: signer,
		hash:   hash,
	}
}

// ForKey picks the scheme used when signing with privKey.
func ForKey(privKey crypto.PrivateKey) (Algorithm, error) {
	var id Scheme
	switch privKey.(type) {
	case *rsa.PrivateKey:
		id = Scheme_RSA_PKCS1_SHA256
	case *ecdsa.PrivateKey:
		id = Scheme_ECDSA_Secp256r1_SHA256
	default:
		return Algorithm{}, ErrUnsupportedKey
	}

	algo, _ := Get(id)
	return algo, nil
}

// Signed is a digitally-signed struct carried in a message.
type Signed struct {
	Scheme    Scheme
	Signature []byte
}

func (s Signed) Bytes() []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(s.Scheme))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(s.Signature)
	})
	return b.BytesOrPanic()
}

func ParseSigned(s *cryptobyte.String) (Signed, bool) {
	var (
		scheme uint16
		sig    cryptobyte.String
	)
	if !s.ReadUint16(&scheme) || !s.ReadUint16LengthPrefixed(&sig) {
		return Signed{}, false
	}
	return Signed{Scheme: Scheme(scheme), Signature: append([]byte(nil), sig...)}, true
}
