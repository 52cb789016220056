package recordcipher

import (
	"bytes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"io"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"

	"github.com/pkg/errors"
)

// Block is a CBC cipher using MAC-then-pad-then-encrypt.
//
// With explicit IVs every record starts with a fresh random IV. Otherwise
// the IV of a direction is the last ciphertext block of its previous
// record, starting from the key block IV.
type Block struct {
	version common.Version
	rand    io.Reader
	mac     macer

	enc, dec ciphersuite.BlockCipher

	explicit bool
	// Chained IVs, unused with explicit IVs.
	writeIV, readIV []byte
}

var _ Cipher = (*Block)(nil)

func newBlock(p Params, local, peer directionKeys) (*Block, error) {
	enc, err := p.Suite.NewBlock(local.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}
	dec, err := p.Suite.NewBlock(peer.key)
	if err != nil {
		return nil, errors.Wrap(common.ErrCrypto, err.Error())
	}

	return &Block{
		version:  p.Version,
		rand:     p.Rand,
		mac:      newMacer(p, local, peer),
		enc:      enc,
		dec:      dec,
		explicit: p.Version.ExplicitIV(),
		writeIV:  bytes.Clone(local.iv),
		readIV:   bytes.Clone(peer.iv),
	}, nil
}

func (*Block) isCipher()              {}
func (*Block) Kind() ciphersuite.Kind { return ciphersuite.KindBlock }
func (c *Block) BlockSize() int       { return c.enc.BlockSize() }

func (c *Block) MAC(dir Direction, ad AdditionalData, data []byte) ([]byte, error) {
	return c.mac.compute(dir, ad, data), nil
}

func (c *Block) PaddingLength(n int) (int, error) {
	bs := c.BlockSize()
	return bs - n%bs, nil
}

func (c *Block) Padding(k int) ([]byte, error) {
	if k < 1 || k > 256 {
		return nil, errors.Errorf("invalid padding length %d", k)
	}
	return bytes.Repeat([]byte{uint8(k - 1)}, k), nil
}

func (c *Block) Encrypt(ad AdditionalData, plaintext []byte) ([]byte, error) {
	bs := c.BlockSize()

	data := make([]byte, 0, len(plaintext)+c.mac.size()+bs)
	data = append(data, plaintext...)
	data = append(data, c.mac.compute(Write, ad, plaintext)...)

	k, _ := c.PaddingLength(len(data))
	pad, _ := c.Padding(k)
	data = append(data, pad...)

	iv := c.writeIV
	if c.explicit {
		iv = make([]byte, bs)
		if _, err := io.ReadFull(c.rand, iv); err != nil {
			return nil, errors.Wrap(common.ErrCrypto, "generating explicit iv")
		}
	}

	cipher.NewCBCEncrypter(c.enc, iv).CryptBlocks(data, data)

	if !c.explicit {
		c.writeIV = bytes.Clone(data[len(data)-bs:])
		return data, nil
	}

	out := make([]byte, 0, bs+len(data))
	out = append(out, iv...)
	return append(out, data...), nil
}

func (c *Block) Decrypt(ad AdditionalData, ciphertext []byte) ([]byte, error) {
	bs := c.BlockSize()

	iv := c.readIV
	if c.explicit {
		if len(ciphertext) < bs {
			return nil, badRecordMAC("record shorter than its iv")
		}
		iv, ciphertext = ciphertext[:bs], ciphertext[bs:]
	}

	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, badRecordMAC("ciphertext is not block aligned")
	}
	if len(ciphertext) < c.mac.size()+1 {
		return nil, badRecordMAC("ciphertext too short for mac and padding")
	}

	data := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.dec, iv).CryptBlocks(data, ciphertext)

	if !c.explicit {
		c.readIV = bytes.Clone(ciphertext[len(ciphertext)-bs:])
	}

	k := int(data[len(data)-1]) + 1
	if k > len(data)-c.mac.size() {
		return nil, badRecordMAC("padding longer than record")
	}
	pad, _ := c.Padding(k)
	if subtle.ConstantTimeCompare(data[len(data)-k:], pad) != 1 {
		return nil, badRecordMAC("invalid padding")
	}
	data = data[:len(data)-k]

	plaintext, mac := data[:len(data)-c.mac.size()], data[len(data)-c.mac.size():]
	if !hmac.Equal(mac, c.mac.compute(Read, ad, plaintext)) {
		return nil, badRecordMAC("mac mismatch")
	}

	return plaintext, nil
}
