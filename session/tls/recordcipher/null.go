package recordcipher

import (
	"bytes"

	"tlsflow/session/tls/common/ciphersuite"
)

// Null passes fragments through unchanged.
type Null struct{}

var _ Cipher = Null{}

func (Null) isCipher()              {}
func (Null) Kind() ciphersuite.Kind { return ciphersuite.KindNull }

func (Null) Encrypt(_ AdditionalData, plaintext []byte) ([]byte, error) {
	return bytes.Clone(plaintext), nil
}

func (Null) Decrypt(_ AdditionalData, ciphertext []byte) ([]byte, error) {
	return bytes.Clone(ciphertext), nil
}

func (Null) MAC(Direction, AdditionalData, []byte) ([]byte, error) {
	return nil, notSupported("mac", ciphersuite.KindNull)
}

func (Null) PaddingLength(int) (int, error) {
	return 0, notSupported("padding", ciphersuite.KindNull)
}

func (Null) Padding(int) ([]byte, error) {
	return nil, notSupported("padding", ciphersuite.KindNull)
}
