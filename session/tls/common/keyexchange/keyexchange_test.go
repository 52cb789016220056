package keyexchange

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type GroupTestSuite struct {
	suite.Suite

	groups []GroupID
}

func TestGroupTestSuite(t *testing.T) {
	suite.Run(t, new(GroupTestSuite))
}

func (s *GroupTestSuite) SetupTest() {
	s.groups = []GroupID{Group_Secp256r1, Group_Secp384r1, Group_Secp521r1, Group_X25519}
}

func (s *GroupTestSuite) TestRespondAgreesWithInitiator() {
	for _, id := range s.groups {
		s.Run(id.String(), func() {
			g, ok := Get(id)
			s.Require().True(ok)

			// The server's ephemeral key from ServerKeyExchange.
			priv, serverPub, err := g.KeyExchange().GenKeyPair(rand.Reader)
			s.Require().NoError(err)

			clientPub, clientShared, err := Respond(g, rand.Reader, serverPub)
			s.Require().NoError(err)
			s.NotEqual(serverPub, clientPub)

			serverShared, err := g.KeyExchange().GenSharedSecret(priv, clientPub)
			s.Require().NoError(err)
			s.Equal(clientShared, serverShared)
		})
	}
}

func (s *GroupTestSuite) TestRespondFreshKeys() {
	g, _ := Get(Group_X25519)
	_, peer, err := g.KeyExchange().GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	pub1, shared1, err := Respond(g, rand.Reader, peer)
	s.Require().NoError(err)
	pub2, shared2, err := Respond(g, rand.Reader, peer)
	s.Require().NoError(err)

	s.NotEqual(pub1, pub2)
	s.NotEqual(shared1, shared2)
}

func (s *GroupTestSuite) TestRespondRejectsPeerKey() {
	p256, _ := Get(Group_Secp256r1)
	p384, _ := Get(Group_Secp384r1)
	_, pub384, err := p384.KeyExchange().GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	testcases := map[string][]byte{
		"empty":       nil,
		"other curve": pub384,
		"compressed":  append([]byte{0x02}, make([]byte, 32)...),
	}
	for name, peer := range testcases {
		s.Run(name, func() {
			pub, shared, err := Respond(p256, rand.Reader, peer)
			s.Error(err)
			s.Nil(pub)
			s.Nil(shared)
		})
	}
}

func TestGenSharedSecretBadPrivateKey(t *testing.T) {
	g, _ := Get(Group_Secp256r1)
	_, pub, err := g.KeyExchange().GenKeyPair(rand.Reader)
	require.NoError(t, err)

	_, err = g.KeyExchange().GenSharedSecret([]byte{1, 2, 3}, pub)
	assert.ErrorContains(t, err, "parsing private key")
}
