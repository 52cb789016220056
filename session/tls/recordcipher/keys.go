package recordcipher

import (
	"crypto/md5"
	"crypto/sha1"

	"tlsflow/lib/algo/crypto/prf"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
)

const (
	MasterSecretLen = 48
	VerifyDataLen   = 12

	labelMasterSecret   = "master secret"
	labelKeyExpansion   = "key expansion"
	labelClientFinished = "client finished"
	labelServerFinished = "server finished"
)

// PRF selects the pseudorandom function of the negotiated version.
func PRF(version common.Version, suite ciphersuite.Suite, secret []byte, label string, seed []byte, l int) []byte {
	if version.SHA256PRF() {
		return prf.TLS12(suite.PRFHash(), secret, label, seed, l)
	}
	return prf.TLS10(secret, label, seed, l)
}

func MasterSecret(version common.Version, suite ciphersuite.Suite, preMaster, clientRandom, serverRandom []byte) []byte {
	seed := concat(clientRandom, serverRandom)
	return PRF(version, suite, preMaster, labelMasterSecret, seed, MasterSecretLen)
}

// Keys is the key block split into its parts. IVs are only present when
// the suite takes them from the key block.
type Keys struct {
	ClientMAC, ServerMAC []byte
	ClientKey, ServerKey []byte
	ClientIV, ServerIV   []byte
}

// ivFromKeyBlock reports whether write IVs are sliced from the key block:
// always for AEAD salts, for CBC only when records carry no explicit IV.
func ivFromKeyBlock(version common.Version, suite ciphersuite.Suite) bool {
	switch suite.Kind() {
	case ciphersuite.KindAEAD:
		return true
	case ciphersuite.KindBlock:
		return !version.ExplicitIV()
	}
	return false
}

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-6.3
func DeriveKeys(version common.Version, suite ciphersuite.Suite, master, clientRandom, serverRandom []byte) Keys {
	macLen, keyLen, ivLen := suite.MACLen(), suite.KeyLen(), 0
	if ivFromKeyBlock(version, suite) {
		ivLen = suite.IVLen()
	}

	seed := concat(serverRandom, clientRandom)
	block := PRF(version, suite, master, labelKeyExpansion, seed, 2*(macLen+keyLen+ivLen))

	next := func(n int) []byte {
		out := block[:n:n]
		block = block[n:]
		return out
	}

	var k Keys
	k.ClientMAC, k.ServerMAC = next(macLen), next(macLen)
	k.ClientKey, k.ServerKey = next(keyLen), next(keyLen)
	k.ClientIV, k.ServerIV = next(ivLen), next(ivLen)
	return k
}

// TranscriptHash digests the handshake transcript the way Finished expects.
func TranscriptHash(version common.Version, suite ciphersuite.Suite, transcript []byte) []byte {
	if version.SHA256PRF() {
		h := suite.PRFHash().New()
		h.Write(transcript)
		return h.Sum(nil)
	}

	m := md5.Sum(transcript)
	s := sha1.Sum(transcript)
	return concat(m[:], s[:])
}

// VerifyData computes the Finished payload sent by role.
func VerifyData(version common.Version, suite ciphersuite.Suite, master []byte, role common.Role, transcript []byte) []byte {
	label := labelClientFinished
	if role == common.RoleServer {
		label = labelServerFinished
	}
	return PRF(version, suite, master, label, TranscriptHash(version, suite, transcript), VerifyDataLen)
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
