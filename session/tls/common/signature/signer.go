package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedKey   = errors.New("unsupported private/public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

type Signer interface {
	Sign(rand io.Reader, digest []byte, hash crypto.Hash, privKey crypto.PrivateKey) (out []byte, err error)
	Verify(digest, signature []byte, hash crypto.Hash, publicKey crypto.PublicKey) (err error)
}

type signerRSA_PKCS1v15 struct{}

var _ Signer = signerRSA_PKCS1v15{}

func (s signerRSA_PKCS1v15) Sign(rand io.Reader, digest []byte, hash crypto.Hash, privKey crypto.PrivateKey) (out []byte, err error) {
	key, ok := privKey.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrUnsupportedKey
	}
	return rsa.SignPKCS1v15(rand, key, hash, digest)
}

func (s signerRSA_PKCS1v15) Verify(digest []byte, signature []byte, hash crypto.Hash, publicKey crypto.PublicKey) (err error) {
	key, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return ErrUnsupportedKey
	}
	if err := rsa.VerifyPKCS1v15(key, hash, digest, signature); err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return nil
}

type signerECDSA struct{ curve elliptic.Curve }

var _ Signer = signerECDSA{}

func (s signerECDSA) Sign(rand io.Reader, digest []byte, hash crypto.Hash, privKey crypto.PrivateKey) (out []byte, err error) {
	key, ok := privKey.(*ecdsa.PrivateKey)
	if !ok || (s.curve != nil && key.Curve != s.curve) {
		return nil, ErrUnsupportedKey
	}

	return ecdsa.SignASN1(rand, key, digest)
}

func (s signerECDSA) Verify(digest []byte, signature []byte, hash crypto.Hash, publicKey crypto.PublicKey) (err error) {
	key, ok := publicKey.(*ecdsa.PublicKey)
	if !ok || (s.curve != nil && key.Curve != s.curve) {
		return ErrUnsupportedKey
	}

	if ok = ecdsa.VerifyASN1(key, digest, signature); !ok {
		return ErrInvalidSignature
	}
	return nil
}
