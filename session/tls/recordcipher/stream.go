package recordcipher

import (
	"crypto/hmac"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"

	"github.com/pkg/errors"
)

// Stream XORs a keystream per direction over fragment and MAC.
type Stream struct {
	mac      macer
	enc, dec ciphersuite.StreamCipher
}

var _ Cipher = (*Stream)(nil)

func newStream(p Params, local, peer directionKeys) (*Stream, error) {
	enc, err := p.Suite.NewStream(local.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}
	dec, err := p.Suite.NewStream(peer.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}

	return &Stream{mac: newMacer(p, local, peer), enc: enc, dec: dec}, nil
}

func (*Stream) isCipher()              {}
func (*Stream) Kind() ciphersuite.Kind { return ciphersuite.KindStream }

func (c *Stream) MAC(dir Direction, ad AdditionalData, data []byte) ([]byte, error) {
	return c.mac.compute(dir, ad, data), nil
}

func (c *Stream) PaddingLength(int) (int, error) {
	return 0, notSupported("padding", ciphersuite.KindStream)
}

func (c *Stream) Padding(int) ([]byte, error) {
	return nil, notSupported("padding", ciphersuite.KindStream)
}

func (c *Stream) Encrypt(ad AdditionalData, plaintext []byte) ([]byte, error) {
	data := make([]byte, 0, len(plaintext)+c.mac.size())
	data = append(data, plaintext...)
	data = append(data, c.mac.compute(Write, ad, plaintext)...)

	c.enc.XORKeyStream(data, data)
	return data, nil
}

func (c *Stream) Decrypt(ad AdditionalData, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.mac.size() {
		return nil, badRecordMAC("ciphertext too short for mac")
	}

	data := make([]byte, len(ciphertext))
	c.dec.XORKeyStream(data, ciphertext)

	plaintext, mac := data[:len(data)-c.mac.size()], data[len(data)-c.mac.size():]
	if !hmac.Equal(mac, c.mac.compute(Read, ad, plaintext)) {
		return nil, badRecordMAC("mac mismatch")
	}

	return plaintext, nil
}
