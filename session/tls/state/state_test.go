package state

import (
	"bytes"
	"crypto/rsa"
	"testing"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/internal/testutil"
	"tlsflow/session/tls/recordcipher"
	"tlsflow/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient}, transport.NewMemoryPort())

	assert.Equal(t, common.VersionTLS12, ctx.Version)
	assert.Equal(t, common.VersionTLS12, ctx.Config.HighestVersion)
	assert.NotNil(t, ctx.Rand())
	assert.False(t, ctx.Layer.Datagram())
	assert.Equal(t, ciphersuite.TLS_NULL_WITH_NULL_NULL, ctx.SuiteOrNull().ID())
	assert.Equal(t, ciphersuite.KindNull, ctx.Layer.WriteSlot().Cipher.Kind())
}

func TestSetVersion(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient}, nil)

	ctx.SetVersion(common.VersionDTLS12)
	assert.True(t, ctx.Layer.Datagram())
	assert.Equal(t, common.VersionDTLS12, ctx.RecordVersion())

	ctx.SetVersion(common.VersionTLS10)
	assert.False(t, ctx.Layer.Datagram())
}

func TestSetSuite(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient}, nil)

	require.NoError(t, ctx.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))
	assert.Equal(t, "TLS_RSA_WITH_AES_128_CBC_SHA", ctx.Suite.Name())

	err := ctx.SetSuite(ciphersuite.ID{0xde, 0xad})
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, ctx.Suite.ID())
}

func TestNewRandom(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient, Rand: bytes.NewReader(bytes.Repeat([]byte{7}, 40))}, nil)

	r, err := ctx.NewRandom()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, RandomLen), r)

	_, err = ctx.NewRandom()
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func derivedPair(t *testing.T, id ciphersuite.ID) (client, server *Context) {
	pre := bytes.Repeat([]byte{0x03}, 48)
	cr, sr := bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32)

	client = New(Config{Role: common.RoleClient}, nil)
	server = New(Config{Role: common.RoleServer}, nil)
	for _, c := range []*Context{client, server} {
		require.NoError(t, c.SetSuite(id))
		c.ClientRandom, c.ServerRandom = cr, sr
		c.PreMasterSecret = pre
		require.NoError(t, c.DeriveSecrets())
	}
	return client, server
}

func TestDeriveSecrets(t *testing.T) {
	client, server := derivedPair(t, ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256)

	assert.Len(t, client.MasterSecret, recordcipher.MasterSecretLen)
	assert.Equal(t, client.MasterSecret, server.MasterSecret)
	require.NotNil(t, client.Pending)
	assert.Equal(t, ciphersuite.KindAEAD, client.Pending.Kind())

	ad := recordcipher.AdditionalData{Type: common.ContentHandshake, Version: common.VersionTLS12}
	ct, err := client.Pending.Encrypt(ad, []byte("finished"))
	require.NoError(t, err)
	pt, err := server.Pending.Decrypt(ad, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("finished"), pt)
}

func TestDeriveSecretsNoPreMaster(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient}, nil)
	assert.ErrorIs(t, ctx.DeriveSecrets(), common.ErrConfiguration)
}

func TestDeriveSecretsResumption(t *testing.T) {
	ctx := New(Config{Role: common.RoleClient}, nil)
	require.NoError(t, ctx.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))
	ctx.MasterSecret = bytes.Repeat([]byte{9}, 48)
	ctx.Resumption = true

	require.NoError(t, ctx.DeriveSecrets())
	assert.Equal(t, bytes.Repeat([]byte{9}, 48), ctx.MasterSecret)
	assert.Equal(t, ciphersuite.KindBlock, ctx.Pending.Kind())
}

func TestVerifyData(t *testing.T) {
	client, server := derivedPair(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	client.AppendTranscript([]byte("hello"))
	server.AppendTranscript([]byte("hello"))

	assert.Equal(t, client.VerifyData(common.RoleClient), server.VerifyData(common.RoleClient))
	assert.NotEqual(t, client.VerifyData(common.RoleClient), client.VerifyData(common.RoleServer))
	assert.Len(t, client.VerifyData(common.RoleServer), recordcipher.VerifyDataLen)
}

func TestSetPeerCertificates(t *testing.T) {
	id := testutil.RSAIdentity()
	ctx := New(Config{Role: common.RoleClient}, nil)

	require.NoError(t, ctx.SetPeerCertificates([][]byte{id.Certificate}))
	pub, ok := ctx.PeerPublicKey.(*rsa.PublicKey)
	require.True(t, ok)
	assert.True(t, pub.Equal(&id.Key.PublicKey))

	err := ctx.SetPeerCertificates([][]byte{{0x30, 0x00}})
	assert.ErrorIs(t, err, common.ErrParser)
	assert.Nil(t, ctx.PeerPublicKey)

	require.NoError(t, ctx.SetPeerCertificates(nil))
	assert.Nil(t, ctx.PeerPublicKey)
}

func TestRenegotiate(t *testing.T) {
	client, _ := derivedPair(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	client.AppendTranscript([]byte("transcript"))
	client.Resumption = true
	client.HandshakeBuffer = []byte{22}
	client.SendMessageSeq = 4
	client.Layer.InstallWrite(client.Pending)

	client.Renegotiate()

	assert.Empty(t, client.Transcript)
	assert.False(t, client.Resumption)
	assert.Empty(t, client.HandshakeBuffer)
	assert.Zero(t, client.SendMessageSeq)
	assert.Nil(t, client.PreMasterSecret)
	// Protection stays until the next ChangeCipherSpec.
	assert.Equal(t, ciphersuite.KindBlock, client.Layer.WriteSlot().Cipher.Kind())
	assert.NotEmpty(t, client.MasterSecret)
}
