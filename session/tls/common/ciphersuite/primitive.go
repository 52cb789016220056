package ciphersuite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rc4"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrKeyLen      = errors.New("invalid key length")
	ErrNoPrimitive = errors.New("suite has no such primitive")
)

type (
	AEAD         = cipher.AEAD
	BlockCipher  = cipher.Block
	StreamCipher = cipher.Stream
)

type (
	AEADFunc   func(key []byte) (AEAD, error)
	BlockFunc  func(key []byte) (BlockCipher, error)
	StreamFunc func(key []byte) (StreamCipher, error)
)

func aeadAES_128_GCM(key []byte) (AEAD, error) {
	if len(key) != 16 {
		return nil, ErrKeyLen
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func aeadAES_256_GCM(key []byte) (AEAD, error) {
	if len(key) != 32 {
		return nil, ErrKeyLen
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func aeadCHACHA20_POLY1305(key []byte) (AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeyLen
	}
	return chacha20poly1305.New(key)
}

func blockAES(key []byte) (BlockCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrKeyLen
	}
	return aes.NewCipher(key)
}

func block3DES(key []byte) (BlockCipher, error) {
	if len(key) != 24 {
		return nil, ErrKeyLen
	}
	return des.NewTripleDESCipher(key)
}

func streamRC4(key []byte) (StreamCipher, error) {
	if len(key) != 16 {
		return nil, ErrKeyLen
	}
	return rc4.NewCipher(key)
}
