package workflow

import (
	"bytes"
	"testing"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/message"
	"tlsflow/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun() *Run {
	ctx := newContext(common.RoleClient, common.VersionTLS12, transport.NewMemoryPort())
	return NewRun(ctx, NewTrace())
}

func TestDoubleExecution(t *testing.T) {
	actions := []Action{
		NewSend(message.NewApplicationData([]byte("x"))),
		&ChangeRandom{Role: common.RoleClient, Random: bytes.Repeat([]byte{1}, 32)},
		&ChangeProtocolVersion{Version: common.VersionTLS10},
		&ToggleEncryption{},
		&DeactivateEncryption{},
	}

	for _, a := range actions {
		t.Run(a.Kind().String(), func(t *testing.T) {
			r := newTestRun()
			require.NoError(t, a.Execute(r))
			require.Equal(t, Executed, a.State())

			err := a.Execute(r)
			assert.ErrorIs(t, err, ErrDoubleExecution)
			assert.Equal(t, Executed, a.State())

			a.Reset()
			assert.Equal(t, NotExecuted, a.State())
			assert.NoError(t, a.Execute(r))
		})
	}
}

func TestFailedActionStaysFailed(t *testing.T) {
	r := newTestRun()
	a := &ChangeCipherSuite{Suite: ciphersuite.IDFromUint16(0xfefe)}

	assert.ErrorIs(t, a.Execute(r), common.ErrConfiguration)
	assert.Equal(t, Failed, a.State())
	assert.ErrorIs(t, a.Execute(r), ErrDoubleExecution)
	assert.Equal(t, Failed, a.State())
}

func TestReceiveMismatchNotAsPlanned(t *testing.T) {
	// A fatal handshake_failure alert where CCS and Finished were planned.
	port := transport.NewMemoryPort([]byte{21, 3, 3, 0, 2, 2, 40})
	ctx := newContext(common.RoleClient, common.VersionTLS12, port)
	recv := NewReceive(&message.ChangeCipherSpec{}, &message.Finished{})
	trace := NewTrace(recv, NewSend(message.NewApplicationData([]byte("x"))))
	r := NewRun(ctx, trace)

	require.NoError(t, recv.Execute(r))
	assert.True(t, recv.Executed())
	assert.True(t, recv.Mismatched)
	assert.Equal(t, []message.Type{message.TypeAlert}, message.Types(recv.Expected))
	assert.Equal(t, []message.Type{message.TypeAlert}, message.Types(recv.Observed))
	assert.False(t, recv.ExecutedAsPlanned())
	assert.False(t, trace.ExecutedAsPlanned())
	assert.Equal(t, 1, trace.Len())

	recv.Reset()
	assert.False(t, recv.Mismatched)
	assert.Nil(t, recv.Observed)
}

func TestChangeRandom(t *testing.T) {
	r := newTestRun()
	r.Ctx.ServerRandom = []byte("old")

	random := bytes.Repeat([]byte{7}, 32)
	a := &ChangeRandom{Role: common.RoleServer, Random: random}
	require.NoError(t, a.Execute(r))

	assert.Equal(t, random, r.Ctx.ServerRandom)
	assert.Equal(t, []byte("old"), a.Old)
	assert.Nil(t, r.Ctx.ClientRandom)
}

func TestChangeProtocolVersion(t *testing.T) {
	r := newTestRun()
	a := &ChangeProtocolVersion{Version: common.VersionDTLS12}
	require.NoError(t, a.Execute(r))

	assert.Equal(t, common.VersionTLS12, a.Old)
	assert.Equal(t, common.VersionDTLS12, r.Ctx.Version)
	assert.True(t, r.Ctx.Layer.Datagram())
}

func TestChangeCipherSuiteAndPreMaster(t *testing.T) {
	r := newTestRun()
	r.Ctx.ClientRandom = bytes.Repeat([]byte{1}, 32)
	r.Ctx.ServerRandom = bytes.Repeat([]byte{2}, 32)

	// Without keys only the selection changes.
	cs := &ChangeCipherSuite{Suite: ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256}
	require.NoError(t, cs.Execute(r))
	assert.Equal(t, ciphersuite.TLS_NULL_WITH_NULL_NULL, cs.Old)
	assert.Equal(t, ciphersuite.KindNull, r.Ctx.Layer.WriteSlot().Cipher.Kind())

	pms := &ChangePreMasterSecret{Secret: bytes.Repeat([]byte{3}, 48)}
	require.NoError(t, pms.Execute(r))
	require.NotNil(t, r.Ctx.Pending)
	require.Len(t, r.Ctx.MasterSecret, 48)
	assert.Equal(t, ciphersuite.KindAEAD, r.Ctx.Pending.Kind())

	// With keys the new suite protects both directions at once.
	cs = &ChangeCipherSuite{Suite: ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA}
	require.NoError(t, cs.Execute(r))
	assert.Equal(t, ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256, cs.Old)
	assert.Equal(t, ciphersuite.KindBlock, r.Ctx.Layer.WriteSlot().Cipher.Kind())
	assert.Equal(t, ciphersuite.KindBlock, r.Ctx.Layer.ReadSlot().Cipher.Kind())
}

func TestToggleEncryption(t *testing.T) {
	r := newTestRun()
	r.Ctx.ClientRandom = bytes.Repeat([]byte{1}, 32)
	r.Ctx.ServerRandom = bytes.Repeat([]byte{2}, 32)
	require.NoError(t, r.Ctx.SetSuite(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA))
	r.Ctx.PreMasterSecret = bytes.Repeat([]byte{3}, 48)
	require.NoError(t, r.Ctx.DeriveSecrets())
	r.Ctx.Layer.InstallWrite(r.Ctx.Pending)
	r.Ctx.Layer.InstallRead(r.Ctx.Pending)

	off := &ToggleEncryption{}
	require.NoError(t, off.Execute(r))
	assert.Equal(t, ciphersuite.KindNull, r.Ctx.Layer.WriteSlot().Cipher.Kind())
	assert.Equal(t, ciphersuite.KindNull, r.Ctx.Layer.ReadSlot().Cipher.Kind())
	require.NotNil(t, r.Ctx.SavedSlots)

	on := &ToggleEncryption{}
	require.NoError(t, on.Execute(r))
	assert.Equal(t, ciphersuite.KindBlock, r.Ctx.Layer.WriteSlot().Cipher.Kind())
	assert.Equal(t, ciphersuite.KindBlock, r.Ctx.Layer.ReadSlot().Cipher.Kind())
	assert.Nil(t, r.Ctx.SavedSlots)

	off = &ToggleEncryption{}
	require.NoError(t, off.Execute(r))
	require.NoError(t, (&DeactivateEncryption{}).Execute(r))
	assert.Nil(t, r.Ctx.SavedSlots)
	assert.Equal(t, ciphersuite.KindNull, r.Ctx.Layer.WriteSlot().Cipher.Kind())
}

func TestRenegotiateRestarts(t *testing.T) {
	r := newTestRun()
	r.Ctx.Transcript = []byte{1, 2, 3}
	r.Ctx.MasterSecret = []byte("master")

	a := &Renegotiate{Actions: []Action{NewSend()}}
	require.NoError(t, a.Execute(r))

	next, ok := r.TakeRestart()
	require.True(t, ok)
	assert.Len(t, next, 1)
	assert.Empty(t, r.Ctx.Transcript)
	assert.Equal(t, []byte("master"), r.Ctx.MasterSecret)

	_, ok = r.TakeRestart()
	assert.False(t, ok)

	// Without actions the default handshake for the role is used.
	a = &Renegotiate{}
	require.NoError(t, a.Execute(r))
	next, _ = r.TakeRestart()
	assert.Equal(t, HandshakeActions(common.RoleClient, ciphersuite.KeyExchangeNull)[0].Kind(), next[0].Kind())
	assert.Len(t, next, 4)
}

func TestKindNames(t *testing.T) {
	for k := KindSend; k <= KindForwardOnly; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("Dance")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestExecutionErrorIs(t *testing.T) {
	err := NewExecutionError(3, KindSend, common.ErrIO)
	assert.ErrorIs(t, err, ErrWorkflowExecution)
	assert.ErrorIs(t, err, common.ErrIO)
	assert.Contains(t, err.Error(), "action 3 (Send)")

	assert.True(t, fatal(common.ErrCrypto))
	assert.True(t, fatal(common.ErrIO))
	assert.False(t, fatal(common.ErrParser))
	assert.False(t, fatal(ErrDoubleExecution))
}
