package types

import (
	"strconv"

	"github.com/pkg/errors"
)

const MaxUint24 = 1<<24 - 1

var ErrOverflow = errors.New("value does not fit in 24 bits")

type Uint24 struct{ data [3]uint8 } // Stored in big endian.

// NOTE: This truncates most significant byte from u32.
func NewUint24(u32 uint32) Uint24 {
	b := [3]uint8{
		uint8(u32 >> 16),
		uint8(u32 >> 8),
		uint8(u32),
	}
	return Uint24From(b, false)
}

// CheckedUint24 is NewUint24 without truncation.
func CheckedUint24(n int) (Uint24, error) {
	if n < 0 || n > MaxUint24 {
		return Uint24{}, errors.Wrapf(ErrOverflow, "%d", n)
	}
	return NewUint24(uint32(n)), nil
}

// littleEndian is true when b is ordered in little-endian.
func Uint24From(b [3]uint8, littleEndian bool) Uint24 {
	if littleEndian {
		b = [3]uint8{b[2], b[1], b[0]}
	}

	return Uint24{data: b}
}

func (u24 Uint24) Raw(littleEndian bool) [3]uint8 {
	d := u24.data
	if littleEndian {
		return [3]uint8{d[2], d[1], d[0]}
	}
	return d
}

func (u24 Uint24) Bytes() []byte {
	return u24.data[:]
}

func (u24 Uint24) String() string {
	return strconv.FormatUint(uint64(u24.Uint32()), 10)
}

func (u24 Uint24) Uint32() uint32 {
	d := u24.data
	return uint32(d[0])<<16 | uint32(d[1])<<8 | uint32(d[2])
}
