// Package keyexchange carries the ephemeral elliptic curve exchange used by
// ECDHE_RSA suites.
package keyexchange

import (
	"crypto/ecdh"
	"io"

	"github.com/pkg/errors"
)

type KeyExchange interface {
	GenKeyPair(rand io.Reader) (priv, pub []byte, err error)
	GenSharedSecret(priv, pub []byte) (shared []byte, err error)
}

type ecdheKeyExchange struct{ curve ecdh.Curve }

var _ KeyExchange = ecdheKeyExchange{}

func (e ecdheKeyExchange) GenKeyPair(rand io.Reader) (priv []byte, pub []byte, err error) {
	privKey, err := e.curve.GenerateKey(rand)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating key via ecdh")
	}

	return privKey.Bytes(), privKey.PublicKey().Bytes(), nil
}

func (e ecdheKeyExchange) GenSharedSecret(priv []byte, pub []byte) (shared []byte, err error) {
	privKey, err := e.curve.NewPrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}

	pubKey, err := e.curve.NewPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "parsing public key")
	}

	if shared, err = privKey.ECDH(pubKey); err != nil {
		return nil, errors.Wrap(err, "creating shared secret")
	}

	return shared, nil
}

// Respond generates our half of the exchange against the peer's public key,
// returning our public key and the shared pre-master secret.
func Respond(g Group, rand io.Reader, peerPub []byte) (pub, shared []byte, err error) {
	priv, pub, err := g.KeyExchange().GenKeyPair(rand)
	if err != nil {
		return nil, nil, err
	}

	shared, err = g.KeyExchange().GenSharedSecret(priv, peerPub)
	if err != nil {
		return nil, nil, err
	}

	return pub, shared, nil
}
