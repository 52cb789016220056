package keyexchange

import (
	"crypto/ecdh"
	"fmt"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc8422#section-5.1.1
type GroupID uint16

func (id GroupID) Bytes() []byte {
	return []byte{uint8(id >> 8), uint8(id)}
}

func (id GroupID) String() string {
	switch id {
	case Group_Secp256r1:
		return "secp256r1"
	case Group_Secp384r1:
		return "secp384r1"
	case Group_Secp521r1:
		return "secp521r1"
	case Group_X25519:
		return "x25519"
	}
	return fmt.Sprintf("group(0x%04x)", uint16(id))
}

type Group struct {
	id       GroupID
	exchange KeyExchange
}

func NewGroup(id GroupID, exchange KeyExchange) Group {
	return Group{id: id, exchange: exchange}
}

func (g Group) ID() GroupID              { return g.id }
func (g Group) KeyExchange() KeyExchange { return g.exchange }

var groups = make(map[GroupID]Group)

func register(g Group) GroupID { groups[g.ID()] = g; return g.ID() }

func Get(id GroupID) (Group, bool) {
	g, ok := groups[id]
	return g, ok
}

var (
	Group_Secp256r1         = register(Group{0x0017, ecdheKeyExchange{ecdh.P256()}})
	Group_Secp384r1         = register(Group{0x0018, ecdheKeyExchange{ecdh.P384()}})
	Group_Secp521r1         = register(Group{0x0019, ecdheKeyExchange{ecdh.P521()}})
	Group_X25519            = register(Group{0x001D, ecdheKeyExchange{ecdh.X25519()}})
	Group_X448      GroupID = 0x001E // Unimplemented in stdlib.
)
