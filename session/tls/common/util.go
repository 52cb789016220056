package common

import "github.com/pkg/errors"

// Error taxonomy. Concrete failures wrap one of these so that callers
// can classify them with errors.Is.
var (
	ErrCrypto        = errors.New("crypto error")
	ErrParser        = errors.New("parser error")
	ErrConfiguration = errors.New("configuration error")
	ErrIO            = errors.New("io error")

	ErrNotSupported  = errors.New("not supported by the negotiated suite")
	ErrNeedMoreBytes = errors.New("need more bytes")
)

func ToBigEndianBytes(n uint64, byteLen uint8) []byte {
	if byteLen > 8 {
		panic("cannot make more than 8 bytes")
	}

	b := make([]byte, byteLen)
	for i := range b {
		shift := uint(8 * (len(b) - 1 - i))
		b[i] = uint8(n >> shift)
	}

	return b
}
