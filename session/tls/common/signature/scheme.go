package signature

import (
	"crypto"
	"crypto/elliptic"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
)

// Scheme is the SignatureAndHashAlgorithm pair of TLS 1.2, hash in the
// high byte and signature in the low byte.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.4.1.4.1
type Scheme uint16

func (s Scheme) Bytes() []byte {
	return []byte{uint8(s >> 8), uint8(s)}
}

func (s Scheme) String() string {
	return fmt.Sprintf("0x%04x", uint16(s))
}

var schemes = make(map[Scheme]Algorithm)

func register(algo Algorithm) Scheme { schemes[algo.ID()] = algo; return algo.ID() }

func Get(id Scheme) (Algorithm, bool) {
	algo, ok := schemes[id]
	return algo, ok
}

var (
	Scheme_RSA_PKCS1_SHA1   = register(Algorithm{0x0201, signerRSA_PKCS1v15{}, crypto.SHA1})
	Scheme_RSA_PKCS1_SHA256 = register(Algorithm{0x0401, signerRSA_PKCS1v15{}, crypto.SHA256})
	Scheme_RSA_PKCS1_SHA384 = register(Algorithm{0x0501, signerRSA_PKCS1v15{}, crypto.SHA384})
	Scheme_RSA_PKCS1_SHA512 = register(Algorithm{0x0601, signerRSA_PKCS1v15{}, crypto.SHA512})

	Scheme_ECDSA_SHA1             = register(Algorithm{0x0203, signerECDSA{}, crypto.SHA1})
	Scheme_ECDSA_Secp256r1_SHA256 = register(Algorithm{0x0403, signerECDSA{elliptic.P256()}, crypto.SHA256})
	Scheme_ECDSA_Secp384r1_SHA384 = register(Algorithm{0x0503, signerECDSA{elliptic.P384()}, crypto.SHA384})
)
