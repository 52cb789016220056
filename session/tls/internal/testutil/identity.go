// Package testutil provides fixtures shared by tests of the handshake
// packages.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"time"
)

type Identity struct {
	Key         *rsa.PrivateKey
	Certificate []byte // DER
}

var (
	identityOnce sync.Once
	identity     Identity
)

// RSAIdentity returns a self-signed RSA identity, generated once per test binary.
func RSAIdentity() Identity {
	identityOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}

		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(1),
			Subject:      pkix.Name{CommonName: "tlsflow.test"},
			DNSNames:     []string{"tlsflow.test"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
			KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		if err != nil {
			panic(err)
		}

		identity = Identity{Key: key, Certificate: der}
	})
	return identity
}
