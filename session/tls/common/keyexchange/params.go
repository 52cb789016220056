package keyexchange

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

const curveTypeNamed = 3

var ErrMalformedParams = errors.New("malformed ecdh parameters")

// ServerParams is ServerECDHParams of a ServerKeyExchange.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8422#section-5.4
type ServerParams struct {
	Group  GroupID
	Public []byte
}

func (p ServerParams) Bytes() []byte {
	var b cryptobyte.Builder
	b.AddUint8(curveTypeNamed)
	b.AddUint16(uint16(p.Group))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(p.Public)
	})
	return b.BytesOrPanic()
}

// ParseServerParams reads the parameters from s, leaving anything after them.
func ParseServerParams(s *cryptobyte.String) (ServerParams, error) {
	var (
		curveType uint8
		group     uint16
		pub       cryptobyte.String
	)

	if !s.ReadUint8(&curveType) || !s.ReadUint16(&group) || !s.ReadUint8LengthPrefixed(&pub) {
		return ServerParams{}, ErrMalformedParams
	}
	if curveType != curveTypeNamed {
		return ServerParams{}, errors.Wrapf(ErrMalformedParams, "unsupported curve type %d", curveType)
	}

	return ServerParams{Group: GroupID(group), Public: append([]byte(nil), pub...)}, nil
}
