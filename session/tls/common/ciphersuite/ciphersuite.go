package ciphersuite

import (
	"crypto"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"strings"

	sliceutil "tlsflow/lib/slice"
)

type ID [2]uint8

func IDFromUint16(v uint16) ID { return ID{uint8(v >> 8), uint8(v)} }

func (id ID) Uint16() uint16 { return uint16(id[0])<<8 | uint16(id[1]) }

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) String() string {
	if s, ok := Get(id); ok {
		return s.Name()
	}
	return fmt.Sprintf("0x%04x", id.Uint16())
}

// Kind is the bulk cipher category of a suite.
type Kind uint8

const (
	KindNull Kind = iota
	KindBlock
	KindStream
	KindAEAD
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBlock:
		return "block"
	case KindStream:
		return "stream"
	case KindAEAD:
		return "aead"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type KeyExchange uint8

const (
	KeyExchangeNull KeyExchange = iota
	KeyExchangeRSA
	KeyExchangeECDHE_RSA
)

type Suite struct {
	id   ID
	name string
	kx   KeyExchange
	kind Kind

	keyLen int
	// Block size for block ciphers, fixed (implicit) IV length for AEAD.
	ivLen int
	// Explicit per-record nonce carried on the wire by AEAD suites.
	nonceLen int

	mac crypto.Hash
	prf crypto.Hash

	block  BlockFunc
	stream StreamFunc
	aead   AEADFunc
}

func (s Suite) ID() ID                   { return s.id }
func (s Suite) Name() string             { return s.name }
func (s Suite) KeyExchange() KeyExchange { return s.kx }
func (s Suite) Kind() Kind               { return s.kind }
func (s Suite) KeyLen() int              { return s.keyLen }
func (s Suite) IVLen() int               { return s.ivLen }
func (s Suite) ExplicitNonceLen() int    { return s.nonceLen }
func (s Suite) MAC() crypto.Hash         { return s.mac }

// PRFHash is the hash used by the TLS 1.2 PRF and for Finished transcripts.
func (s Suite) PRFHash() crypto.Hash { return s.prf }

func (s Suite) MACLen() int {
	if s.mac == 0 {
		return 0
	}
	return s.mac.Size()
}

func (s Suite) NewBlock(key []byte) (BlockCipher, error) {
	if s.block == nil {
		return nil, ErrNoPrimitive
	}
	return s.block(key)
}

func (s Suite) NewStream(key []byte) (StreamCipher, error) {
	if s.stream == nil {
		return nil, ErrNoPrimitive
	}
	return s.stream(key)
}

func (s Suite) NewAEAD(key []byte) (AEAD, error) {
	if s.aead == nil {
		return nil, ErrNoPrimitive
	}
	return s.aead(key)
}

var (
	suites = make(map[ID]Suite)
	names  = make(map[string]ID)
)

func register(s Suite) ID {
	suites[s.ID()] = s
	names[s.Name()] = s.ID()
	return s.ID()
}

func Get(id ID) (Suite, bool) {
	s, ok := suites[id]
	return s, ok
}

// ByName resolves a suite by its IANA name, with or without the "TLS_" prefix.
func ByName(name string) (Suite, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "TLS_") {
		name = "TLS_" + name
	}

	id, ok := names[name]
	if !ok {
		return Suite{}, false
	}
	return Get(id)
}

func AsIDs(suites []Suite) []ID {
	return sliceutil.Map(suites, func(suite Suite) ID {
		return suite.ID()
	})
}

// Reference: https://www.iana.org/assignments/tls-parameters/tls-parameters.xhtml#tls-parameters-4
var (
	TLS_NULL_WITH_NULL_NULL = register(Suite{
		id: ID{0x00, 0x00}, name: "TLS_NULL_WITH_NULL_NULL", kind: KindNull, prf: crypto.SHA256,
	})

	TLS_RSA_WITH_RC4_128_MD5 = register(Suite{
		id: ID{0x00, 0x04}, name: "TLS_RSA_WITH_RC4_128_MD5", kx: KeyExchangeRSA, kind: KindStream,
		keyLen: 16, mac: crypto.MD5, prf: crypto.SHA256, stream: streamRC4,
	})
	TLS_RSA_WITH_RC4_128_SHA = register(Suite{
		id: ID{0x00, 0x05}, name: "TLS_RSA_WITH_RC4_128_SHA", kx: KeyExchangeRSA, kind: KindStream,
		keyLen: 16, mac: crypto.SHA1, prf: crypto.SHA256, stream: streamRC4,
	})

	TLS_RSA_WITH_3DES_EDE_CBC_SHA = register(Suite{
		id: ID{0x00, 0x0a}, name: "TLS_RSA_WITH_3DES_EDE_CBC_SHA", kx: KeyExchangeRSA, kind: KindBlock,
		keyLen: 24, ivLen: 8, mac: crypto.SHA1, prf: crypto.SHA256, block: block3DES,
	})
	TLS_RSA_WITH_AES_128_CBC_SHA = register(Suite{
		id: ID{0x00, 0x2f}, name: "TLS_RSA_WITH_AES_128_CBC_SHA", kx: KeyExchangeRSA, kind: KindBlock,
		keyLen: 16, ivLen: 16, mac: crypto.SHA1, prf: crypto.SHA256, block: blockAES,
	})
	TLS_RSA_WITH_AES_256_CBC_SHA = register(Suite{
		id: ID{0x00, 0x35}, name: "TLS_RSA_WITH_AES_256_CBC_SHA", kx: KeyExchangeRSA, kind: KindBlock,
		keyLen: 32, ivLen: 16, mac: crypto.SHA1, prf: crypto.SHA256, block: blockAES,
	})
	TLS_RSA_WITH_AES_128_CBC_SHA256 = register(Suite{
		id: ID{0x00, 0x3c}, name: "TLS_RSA_WITH_AES_128_CBC_SHA256", kx: KeyExchangeRSA, kind: KindBlock,
		keyLen: 16, ivLen: 16, mac: crypto.SHA256, prf: crypto.SHA256, block: blockAES,
	})
	TLS_RSA_WITH_AES_256_CBC_SHA256 = register(Suite{
		id: ID{0x00, 0x3d}, name: "TLS_RSA_WITH_AES_256_CBC_SHA256", kx: KeyExchangeRSA, kind: KindBlock,
		keyLen: 32, ivLen: 16, mac: crypto.SHA256, prf: crypto.SHA256, block: blockAES,
	})

	TLS_RSA_WITH_AES_128_GCM_SHA256 = register(Suite{
		id: ID{0x00, 0x9c}, name: "TLS_RSA_WITH_AES_128_GCM_SHA256", kx: KeyExchangeRSA, kind: KindAEAD,
		keyLen: 16, ivLen: 4, nonceLen: 8, prf: crypto.SHA256, aead: aeadAES_128_GCM,
	})
	TLS_RSA_WITH_AES_256_GCM_SHA384 = register(Suite{
		id: ID{0x00, 0x9d}, name: "TLS_RSA_WITH_AES_256_GCM_SHA384", kx: KeyExchangeRSA, kind: KindAEAD,
		keyLen: 32, ivLen: 4, nonceLen: 8, prf: crypto.SHA384, aead: aeadAES_256_GCM,
	})

	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256 = register(Suite{
		id: ID{0xcc, 0xa8}, name: "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256", kx: KeyExchangeECDHE_RSA, kind: KindAEAD,
		keyLen: 32, ivLen: 12, prf: crypto.SHA256, aead: aeadCHACHA20_POLY1305,
	})
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 = register(Suite{
		id: ID{0xc0, 0x2f}, name: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", kx: KeyExchangeECDHE_RSA, kind: KindAEAD,
		keyLen: 16, ivLen: 4, nonceLen: 8, prf: crypto.SHA256, aead: aeadAES_128_GCM,
	})
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA = register(Suite{
		id: ID{0xc0, 0x13}, name: "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA", kx: KeyExchangeECDHE_RSA, kind: KindBlock,
		keyLen: 16, ivLen: 16, mac: crypto.SHA1, prf: crypto.SHA256, block: blockAES,
	})
)
