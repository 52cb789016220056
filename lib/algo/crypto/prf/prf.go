// Package prf implements the pseudorandom functions of TLS 1.0 through 1.2.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-5
package prf

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-5
func PHash(h func() hash.Hash, secret, seed []byte, l int) []byte {
	out := make([]byte, 0, l+h().Size())

	mac := hmac.New(h, secret)
	mac.Write(seed)
	a := mac.Sum(nil) // A(1)

	for len(out) < l {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = mac.Sum(out)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}

	return out[:l]
}

// TLS12 is PRF(secret, label, seed) = P_<hash>(secret, label + seed).
func TLS12(hash crypto.Hash, secret []byte, label string, seed []byte, l int) []byte {
	return PHash(hash.New, secret, labeled(label, seed), l)
}

// TLS10 is the PRF of TLS 1.0 and 1.1, splitting the secret between
// P_MD5 and P_SHA-1 and XORing the outputs.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc2246#section-5
func TLS10(secret []byte, label string, seed []byte, l int) []byte {
	half := (len(secret) + 1) / 2
	s1 := secret[:half]
	s2 := secret[len(secret)-half:]

	ls := labeled(label, seed)
	out := PHash(md5.New, s1, ls, l)
	x := PHash(sha1.New, s2, ls, l)
	for i := range out {
		out[i] ^= x[i]
	}

	return out
}

func labeled(label string, seed []byte) []byte {
	ls := make([]byte, 0, len(label)+len(seed))
	ls = append(ls, label...)
	return append(ls, seed...)
}
