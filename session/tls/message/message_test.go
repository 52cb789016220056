package message

import (
	"bytes"
	"testing"

	"tlsflow/session/tls/alert"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/internal/testutil"
	"tlsflow/session/tls/modvar"
	"tlsflow/session/tls/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func newPair(version common.Version, suites ...ciphersuite.ID) (client, server *state.Context) {
	id := testutil.RSAIdentity()
	client = state.New(state.Config{
		Role:           common.RoleClient,
		HighestVersion: version,
		Suites:         suites,
	}, nil)
	server = state.New(state.Config{
		Role:           common.RoleServer,
		HighestVersion: version,
		Suites:         suites,
		Certificates:   [][]byte{id.Certificate},
		PrivateKey:     id.Key,
	}, nil)
	return client, server
}

// deliver serializes ms on from, then decodes and adjusts them on to,
// returning what to observed.
func deliver(t *testing.T, from, to *state.Context, ms ...Message) []Message {
	t.Helper()

	var observed []Message
	for _, m := range ms {
		b, err := Serialize(from, m)
		require.NoError(t, err)
		require.NoError(t, AdjustSent(from, m))
		Commit(from, m)

		got := Decode(to, m.ContentType(), b, nil)
		for _, o := range got {
			require.NoError(t, AdjustReceived(to, o))
		}
		observed = append(observed, got...)
	}
	return observed
}

type HandshakeTestSuite struct {
	suite.Suite
}

func TestHandshakeTestSuite(t *testing.T) {
	suite.Run(t, new(HandshakeTestSuite))
}

func (s *HandshakeTestSuite) handshake(version common.Version, id ciphersuite.ID) (client, server *state.Context) {
	client, server = newPair(version, ciphersuite.TLS_RSA_WITH_RC4_128_SHA, id)
	server.Config.Suites = []ciphersuite.ID{id}
	t := s.T()

	observed := deliver(t, client, server, &ClientHello{})
	s.Equal([]Type{TypeClientHello}, Types(observed))
	s.Equal(id, server.Suite.ID())

	flight := []Message{&ServerHello{}, &Certificate{}}
	if server.Suite.KeyExchange() == ciphersuite.KeyExchangeECDHE_RSA {
		flight = append(flight, &ServerKeyExchange{})
	}
	flight = append(flight, &ServerHelloDone{})
	observed = deliver(t, server, client, flight...)
	s.Equal(Types(flight), Types(observed))

	deliver(t, client, server, &ClientKeyExchange{}, &ChangeCipherSpec{}, &Finished{})
	deliver(t, server, client, &ChangeCipherSpec{}, &Finished{})
	return client, server
}

func (s *HandshakeTestSuite) TestFullHandshake() {
	testcases := []struct {
		version common.Version
		suite   ciphersuite.ID
	}{
		{common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA},
		{common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_256_GCM_SHA384},
		{common.VersionTLS10, ciphersuite.TLS_RSA_WITH_3DES_EDE_CBC_SHA},
		{common.VersionTLS12, ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
		{common.VersionTLS11, ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA},
		{common.VersionDTLS12, ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256},
	}

	for _, tc := range testcases {
		s.Run(tc.version.String()+"/"+tc.suite.String(), func() {
			client, server := s.handshake(tc.version, tc.suite)

			s.Equal(client.MasterSecret, server.MasterSecret)
			s.Equal(client.Transcript, server.Transcript)
			s.Equal(client.ClientVerifyData, server.ClientVerifyData)
			s.Equal(client.ServerVerifyData, server.ServerVerifyData)
			s.Len(client.ClientVerifyData, 12)
			s.Equal(tc.suite, client.Suite.ID())

			kind := client.Suite.Kind()
			s.Equal(kind, client.Layer.WriteSlot().Cipher.Kind())
			s.Equal(kind, client.Layer.ReadSlot().Cipher.Kind())
			s.Equal(kind, server.Layer.WriteSlot().Cipher.Kind())
			s.Equal(kind, server.Layer.ReadSlot().Cipher.Kind())
		})
	}
}

func (s *HandshakeTestSuite) TestServerSelectsFirstConfiguredSuiteOffered() {
	client, server := newPair(common.VersionTLS12,
		ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256)
	server.Config.Suites = []ciphersuite.ID{
		ciphersuite.TLS_RSA_WITH_AES_256_CBC_SHA,
		ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256,
		ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA,
	}

	deliver(s.T(), client, server, &ClientHello{})
	s.Equal(ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256, server.Suite.ID())

	// Nothing in common: the client's first choice.
	server.Config.Suites = []ciphersuite.ID{ciphersuite.TLS_RSA_WITH_AES_256_CBC_SHA}
	deliver(s.T(), client, server, &ClientHello{})
	s.Equal(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, server.Suite.ID())
}

func (s *HandshakeTestSuite) TestServerSelectsOlderVersion() {
	client, server := newPair(common.VersionTLS11, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	server.Config.HighestVersion = common.VersionTLS12

	deliver(s.T(), client, server, &ClientHello{})
	s.Equal(common.VersionTLS11, server.Version)

	deliver(s.T(), server, client, &ServerHello{})
	s.Equal(common.VersionTLS11, client.Version)
}

func (s *HandshakeTestSuite) TestFinishedMismatch() {
	client, server := s.handshake(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)

	fin := &Finished{}
	fin.VerifyData.Set(bytes.Repeat([]byte{0xee}, 12))
	b, err := Serialize(client, fin)
	s.Require().NoError(err)

	got := Decode(server, common.ContentHandshake, b, nil)
	s.Require().Len(got, 1)
	err = AdjustReceived(server, got[0])
	s.ErrorIs(err, ErrVerifyData)
	s.Equal(bytes.Repeat([]byte{0xee}, 12), server.ClientVerifyData)
}

func (s *HandshakeTestSuite) TestResumption() {
	client, server := s.handshake(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	master := bytes.Clone(server.MasterSecret)
	client.Renegotiate()
	server.Renegotiate()

	hello := &ClientHello{}
	hello.SessionID.Set(client.SessionID)
	deliver(s.T(), client, server, hello)
	deliver(s.T(), server, client, &ServerHello{})

	s.True(client.Resumption)
	s.True(server.Resumption)
	s.Equal(master, client.MasterSecret)

	deliver(s.T(), server, client, &ChangeCipherSpec{}, &Finished{})
	deliver(s.T(), client, server, &ChangeCipherSpec{}, &Finished{})
	s.Equal(client.ServerVerifyData, server.ServerVerifyData)
}

func (s *HandshakeTestSuite) TestRSAKeyExchangeWithoutKeys() {
	client, server := newPair(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	server.Config.PrivateKey = nil
	s.Require().NoError(client.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))
	s.Require().NoError(server.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))

	cke := &ClientKeyExchange{}
	observed := deliver(s.T(), client, server, cke)

	s.Len(cke.PreMasterSecret, 48)
	s.Equal(common.VersionTLS12.Bytes(), cke.PreMasterSecret[:2])
	s.Equal(cke.PreMasterSecret, cke.ExchangeKeys.Value())
	s.Equal(cke.PreMasterSecret, observed[0].(*ClientKeyExchange).PreMasterSecret)
	s.Equal(client.MasterSecret, server.MasterSecret)
}

func (s *HandshakeTestSuite) TestRSAKeyExchangeBadCiphertext() {
	client, server := newPair(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	s.Require().NoError(client.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))
	s.Require().NoError(server.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))

	cke := &ClientKeyExchange{}
	cke.ExchangeKeys.Set(bytes.Repeat([]byte{1}, 256))
	cke.PreMasterSecret = bytes.Repeat([]byte{2}, 48)
	observed := deliver(s.T(), client, server, cke)

	got := observed[0].(*ClientKeyExchange).PreMasterSecret
	s.Len(got, 48)
	s.NotEqual(cke.PreMasterSecret, got)
	s.NotEqual(client.MasterSecret, server.MasterSecret)
}

func (s *HandshakeTestSuite) TestServerKeyExchangeBadSignature() {
	client, server := newPair(common.VersionTLS12, ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	deliver(s.T(), client, server, &ClientHello{})
	deliver(s.T(), server, client, &ServerHello{}, &Certificate{})

	ske := &ServerKeyExchange{}
	ske.Signature.Modify(modvar.Xor{Mask: []byte{0xff}})
	b, err := Serialize(server, ske)
	s.Require().NoError(err)

	got := Decode(client, common.ContentHandshake, b, nil)
	s.Require().Len(got, 1)
	s.ErrorIs(AdjustReceived(client, got[0]), ErrSignature)
	s.Equal(ske.PublicKey.Value(), client.PeerKeyShare)
}

func TestHelloRequestOutsideTranscript(t *testing.T) {
	client, server := newPair(common.VersionTLS12)

	observed := deliver(t, server, client, &HelloRequest{})
	require.Len(t, observed, 1)
	assert.Equal(t, TypeHelloRequest, observed[0].Type())
	assert.Equal(t, []byte{0, 0, 0, 0}, observed[0].Common().Raw)
	assert.Empty(t, client.Transcript)
	assert.Empty(t, server.Transcript)
	assert.False(t, InTranscript(observed[0]))
}

func TestModifiedFields(t *testing.T) {
	client, _ := newPair(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)

	hello := &ClientHello{}
	hello.Random.Set(make([]byte, 32))
	hello.Random.Modify(modvar.Xor{Mask: []byte{0xff}, Offset: 31})
	hello.Length.Modify(modvar.Add[uint32]{Delta: 1})

	b, err := Serialize(client, hello)
	require.NoError(t, err)

	// type(1) length(3) version(2) random(32)
	assert.Equal(t, byte(0xff), b[4+2+31])
	assert.Equal(t, uint32(len(b)-4+1), uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]))
	assert.Equal(t, make([]byte, 32), hello.Random.Original())
	assert.Equal(t, b, hello.Raw)
}

func TestDecodeFragmentedHandshake(t *testing.T) {
	client, server := newPair(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)

	b, err := Serialize(client, &ClientHello{})
	require.NoError(t, err)
	done, err := Serialize(server, &ServerHelloDone{})
	require.NoError(t, err)

	assert.Empty(t, Decode(server, common.ContentHandshake, b[:3], nil))
	assert.Empty(t, Decode(server, common.ContentHandshake, b[3:20], nil))
	got := Decode(server, common.ContentHandshake, append(bytes.Clone(b[20:]), done...), nil)

	assert.Equal(t, []Type{TypeClientHello, TypeServerHelloDone}, Types(got))
	assert.Equal(t, b, got[0].Common().Raw)
	assert.True(t, got[0].Common().FromWire())
	assert.Empty(t, server.HandshakeBuffer)
}

func TestDecodeMalformedHandshake(t *testing.T) {
	client, _ := newPair(common.VersionTLS12)

	// A server hello too short to parse, then a type nobody knows.
	data := []byte{2, 0, 0, 2, 3, 3, 99, 0, 0, 1, 0xaa}
	got := Decode(client, common.ContentHandshake, data, nil)
	require.Len(t, got, 2)

	for i, want := range []HandshakeType{HandshakeServerHello, 99} {
		u, ok := got[i].(*UnknownHandshake)
		require.True(t, ok)
		assert.Equal(t, want, u.HandshakeType.Value())
	}
	assert.Equal(t, []byte{3, 3}, got[0].(*UnknownHandshake).Body.Value())

	// Re-serializing keeps the original bytes.
	b, err := Serialize(client, got[1])
	require.NoError(t, err)
	assert.Equal(t, data[6:], b)
}

func TestDecodeContent(t *testing.T) {
	ctx, _ := newPair(common.VersionTLS12)

	ccs := Decode(ctx, common.ContentChangeCipherSpec, []byte{1, 1}, nil)
	assert.Equal(t, []Type{TypeChangeCipherSpec, TypeChangeCipherSpec}, Types(ccs))

	alerts := Decode(ctx, common.ContentAlert, []byte{1, 0, 2, 40, 7}, nil)
	require.Equal(t, []Type{TypeAlert, TypeAlert, TypeUnknown}, Types(alerts))
	assert.False(t, Fatal(ccs[0]))
	assert.True(t, Fatal(alerts[0]), "close_notify ends the session")
	assert.True(t, Fatal(alerts[1]))
	assert.Equal(t, alert.HandshakeFailure, alerts[1].(*Alert).Alert().Description)
	assert.Equal(t, common.ContentAlert, alerts[2].ContentType())

	app := Decode(ctx, common.ContentApplicationData, []byte("GET /"), nil)
	require.Len(t, app, 1)
	assert.Equal(t, []byte("GET /"), app[0].(*ApplicationData).Data.Value())

	hb := Decode(ctx, common.ContentHeartbeat, []byte{1, 0, 0}, nil)
	require.Len(t, hb, 1)
	assert.Equal(t, common.ContentHeartbeat, hb[0].ContentType())
}

func TestDatagramFraming(t *testing.T) {
	client, server := newPair(common.VersionDTLS12, ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256)

	first, err := Serialize(client, &ClientHello{})
	require.NoError(t, err)
	second, err := Serialize(client, &ClientHello{})
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0}, first[4:6])
	assert.Equal(t, []byte{0, 1}, second[4:6])
	assert.Equal(t, []byte{0, 0, 0}, first[6:9])
	assert.Equal(t, first[1:4], first[9:12])

	got := Decode(server, common.ContentHandshake, second, nil)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(1), got[0].(*ClientHello).MessageSeq.Value())
	assert.Equal(t, uint16(1), server.RecvMessageSeq)

	// A fragment is kept opaque.
	frag := bytes.Clone(first[:12+4])
	frag[9], frag[10], frag[11] = 0, 0, 4
	got = Decode(server, common.ContentHandshake, frag, nil)
	require.Len(t, got, 1)
	assert.Equal(t, TypeUnknownHandshake, got[0].Type())
}

func TestBind(t *testing.T) {
	client, server := newPair(common.VersionTLS12, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)

	sent := &ClientHello{}
	observed := deliver(t, client, server, sent)

	configured := &ClientHello{}
	configured.SessionID.Modify(modvar.Append{Suffix: []byte{0xab}})
	require.NoError(t, Bind(configured, observed[0]))

	assert.True(t, configured.FromWire())
	assert.Equal(t, sent.Random.Value(), configured.Random.Value())
	assert.Equal(t, []byte{0xab}, configured.SessionID.Value())
	assert.Equal(t, sent.Raw, configured.Raw)

	// Bound messages are sent as they are, with modifications applied.
	b, err := Serialize(server, configured)
	require.NoError(t, err)
	assert.Equal(t, sent.Random.Value(), configured.Random.Value())
	assert.Len(t, b, len(sent.Raw)+1)

	assert.Error(t, Bind(&ServerHello{}, observed[0]))
	assert.False(t, Matches(&Finished{}, observed[0]))
}

func TestTypes(t *testing.T) {
	for tt := TypeHelloRequest; tt <= TypeUnknown; tt++ {
		m, err := New(tt)
		require.NoError(t, err)
		assert.Equal(t, tt, m.Type())

		parsed, err := ParseType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, parsed)
	}

	_, err := New(0)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	_, err = ParseType("NewSessionTicket")
	assert.ErrorIs(t, err, common.ErrConfiguration)

	assert.Equal(t, common.ContentHandshake, MustNew(TypeFinished).ContentType())
	assert.Equal(t, common.ContentChangeCipherSpec, MustNew(TypeChangeCipherSpec).ContentType())
	assert.Equal(t, common.ContentApplicationData, MustNew(TypeUnknown).ContentType())

	ms := []Message{&ClientHello{}, &ChangeCipherSpec{}, &Finished{}}
	assert.Equal(t, []string{"ClientHello", "ChangeCipherSpec", "Finished"}, TypeNames(ms))
	assert.Empty(t, TypeNames(nil))
}

func TestAlertDefaults(t *testing.T) {
	ctx, _ := newPair(common.VersionTLS12)

	b, err := Serialize(ctx, &Alert{})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, b)

	b, err = Serialize(ctx, NewAlert(alert.Alert{Level: alert.LevelFatal, Description: alert.BadRecordMAC}))
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 20}, b)
}
