package recordcipher

import (
	"bytes"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"

	"github.com/pkg/errors"
)

// AEAD seals fragments with the record context as additional data.
//
// GCM suites build the nonce from the 4 byte key block salt and an 8 byte
// explicit part sent in front of each record (RFC 5288). ChaCha20-Poly1305
// XORs the sequence number into a 12 byte key block IV and sends no
// explicit nonce (RFC 7905).
type AEAD struct {
	enc, dec ciphersuite.AEAD

	writeIV, readIV []byte
	explicitLen     int
}

var _ Cipher = (*AEAD)(nil)

func newAEAD(p Params, local, peer directionKeys) (*AEAD, error) {
	enc, err := p.Suite.NewAEAD(local.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}
	dec, err := p.Suite.NewAEAD(peer.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}

	return &AEAD{
		enc:         enc,
		dec:         dec,
		writeIV:     bytes.Clone(local.iv),
		readIV:      bytes.Clone(peer.iv),
		explicitLen: p.Suite.ExplicitNonceLen(),
	}, nil
}

func (*AEAD) isCipher()              {}
func (*AEAD) Kind() ciphersuite.Kind { return ciphersuite.KindAEAD }

func (c *AEAD) MAC(Direction, AdditionalData, []byte) ([]byte, error) {
	return nil, notSupported("mac", ciphersuite.KindAEAD)
}

func (c *AEAD) PaddingLength(int) (int, error) {
	return 0, notSupported("padding", ciphersuite.KindAEAD)
}

func (c *AEAD) Padding(int) ([]byte, error) {
	return nil, notSupported("padding", ciphersuite.KindAEAD)
}

func (c *AEAD) nonce(iv []byte, explicit []byte, seq uint64) []byte {
	if c.explicitLen > 0 {
		n := make([]byte, 0, len(iv)+len(explicit))
		n = append(n, iv...)
		return append(n, explicit...)
	}

	n := bytes.Clone(iv)
	s := common.ToBigEndianBytes(seq, 8)
	for i := range s {
		n[len(n)-8+i] ^= s[i]
	}
	return n
}

func (c *AEAD) Encrypt(ad AdditionalData, plaintext []byte) ([]byte, error) {
	var explicit []byte
	if c.explicitLen > 0 {
		explicit = common.ToBigEndianBytes(ad.Seq, uint8(c.explicitLen))
	}

	out := make([]byte, 0, len(explicit)+len(plaintext)+c.enc.Overhead())
	out = append(out, explicit...)
	return c.enc.Seal(out, c.nonce(c.writeIV, explicit, ad.Seq), plaintext, ad.Bytes(len(plaintext))), nil
}

func (c *AEAD) Decrypt(ad AdditionalData, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.explicitLen+c.dec.Overhead() {
		return nil, badRecordMAC("ciphertext too short for aead")
	}

	explicit, sealed := ciphertext[:c.explicitLen], ciphertext[c.explicitLen:]
	plainLen := len(sealed) - c.dec.Overhead()

	plaintext, err := c.dec.Open(nil, c.nonce(c.readIV, explicit, ad.Seq), sealed, ad.Bytes(plainLen))
	if err != nil {
		return nil, badRecordMAC(err.Error())
	}
	return plaintext, nil
}
