package signature

import (
	"crypto"
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"io"

	"github.com/pkg/errors"
)

// Versions before TLS 1.2 sign the concatenated MD5 and SHA-1 digests with
// RSA and carry no scheme on the wire.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc4346#section-7.4.3

func legacyDigest(data []byte) []byte {
	m := md5.Sum(data)
	s := sha1.Sum(data)
	return append(m[:], s[:]...)
}

func SignLegacy(rand io.Reader, data []byte, privKey crypto.PrivateKey) ([]byte, error) {
	return signerRSA_PKCS1v15{}.Sign(rand, legacyDigest(data), crypto.MD5SHA1, privKey)
}

func VerifyLegacy(data, sig []byte, publicKey crypto.PublicKey) error {
	if _, ok := publicKey.(*rsa.PublicKey); !ok {
		return errors.Wrap(ErrUnsupportedKey, "legacy signatures are RSA only")
	}
	return signerRSA_PKCS1v15{}.Verify(legacyDigest(data), sig, crypto.MD5SHA1, publicKey)
}
