package relay

import (
	"context"
	"testing"
	"time"

	"tlsflow/session/tls/alert"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/internal/testutil"
	"tlsflow/session/tls/message"
	"tlsflow/session/tls/state"
	"tlsflow/session/tls/workflow"
	"tlsflow/transport"
	"tlsflow/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

var suiteID = ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA

func newContext(role common.Role, port transport.Port, withKey bool) *state.Context {
	cfg := state.Config{Role: role, HighestVersion: common.VersionTLS12, Suites: []ciphersuite.ID{suiteID}}
	if withKey {
		id := testutil.RSAIdentity()
		cfg.Certificates = [][]byte{id.Certificate}
		cfg.PrivateKey = id.Key
	}
	return state.New(cfg, port)
}

type RelayTestSuite struct {
	suite.Suite

	conns []transport.Conn

	client, server             *state.Context
	clientFacing, serverFacing *state.Context

	executor *workflow.Executor
}

func TestRelayTestSuite(t *testing.T) {
	suite.Run(t, new(RelayTestSuite))
}

func (s *RelayTestSuite) SetupTest() {
	c1, c2 := pipe.BufferedPipe("client", "relay-client", clock.New(), 1<<16)
	s1, s2 := pipe.BufferedPipe("relay-server", "server", clock.New(), 1<<16)
	s.conns = []transport.Conn{c1, c2, s1, s2}

	s.client = newContext(common.RoleClient, transport.NewStreamPort(c1), false)
	s.clientFacing = newContext(common.RoleServer, transport.NewStreamPort(c2), true)
	s.serverFacing = newContext(common.RoleClient, transport.NewStreamPort(s1), false)
	s.server = newContext(common.RoleServer, transport.NewStreamPort(s2), true)

	s.executor = workflow.NewExecutor(nil, workflow.Options{})
}

func (s *RelayTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	for _, c := range s.conns {
		s.NoError(c.Close())
	}
}

// run executes the peers' traces in the background and the relay trace
// in the foreground.
func (s *RelayTestSuite) run(rl *Relay, relayTrace, clientTrace, serverTrace *workflow.Trace) (relayErr, clientErr, serverErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientc, serverc := make(chan error, 1), make(chan error, 1)
	go func() { clientc <- s.executor.ExecuteWorkflow(ctx, clientTrace, s.client) }()
	go func() { serverc <- s.executor.ExecuteWorkflow(ctx, serverTrace, s.server) }()

	relayErr = rl.Execute(ctx, relayTrace)
	return relayErr, <-clientc, <-serverc
}

func (s *RelayTestSuite) TestTransparent() {
	data := []byte("ping")
	rl := New(s.clientFacing, s.serverFacing, nil, Options{})
	relayTrace := workflow.RelayTrace(ciphersuite.KeyExchangeRSA, data)
	clientTrace := workflow.HandshakeTrace(common.RoleClient, ciphersuite.KeyExchangeRSA, data)
	serverTrace := workflow.HandshakeTrace(common.RoleServer, ciphersuite.KeyExchangeRSA, data)

	relayErr, clientErr, serverErr := s.run(rl, relayTrace, clientTrace, serverTrace)
	s.Require().NoError(relayErr)
	s.Require().NoError(clientErr)
	s.Require().NoError(serverErr)

	s.True(relayTrace.ExecutedAsPlanned())
	s.True(clientTrace.ExecutedAsPlanned())
	s.True(serverTrace.ExecutedAsPlanned())

	// Both legs saw what a direct handshake would have produced.
	s.Equal(s.client.Transcript, s.server.Transcript)
	s.Equal(s.client.Transcript, s.clientFacing.Transcript)
	s.Equal(s.server.Transcript, s.serverFacing.Transcript)
	s.Equal(s.client.MasterSecret, s.server.MasterSecret)
	s.Equal(s.client.MasterSecret, s.clientFacing.MasterSecret)
	s.Equal(s.server.MasterSecret, s.serverFacing.MasterSecret)

	clientFacing, serverFacing := rl.Cursors()
	s.Equal(relayTrace.Len(), clientFacing)
	s.Equal(relayTrace.Len(), serverFacing)

	got := serverTrace.Actions[4].(*workflow.Receive).Expected[0].(*message.ApplicationData)
	s.Equal(data, got.Data.Value())
}

func (s *RelayTestSuite) TestModifyInTransit() {
	rl := New(s.clientFacing, s.serverFacing, nil, Options{
		Modify: func(m message.Message, b []byte) ([]byte, error) {
			if m.Type() == message.TypeApplicationData {
				return []byte("pong"), nil
			}
			return b, nil
		},
	})

	relayTrace := workflow.RelayTrace(ciphersuite.KeyExchangeRSA, nil)
	relayTrace.Actions = append(relayTrace.Actions, workflow.NewSend(&message.ApplicationData{}))
	relayTrace.Actions[4].(*workflow.Send).Messages[0].Common().Modify = true

	clientTrace := workflow.HandshakeTrace(common.RoleClient, ciphersuite.KeyExchangeRSA, nil)
	clientTrace.Actions = append(clientTrace.Actions, workflow.NewSend(message.NewApplicationData([]byte("ping"))))
	serverTrace := workflow.HandshakeTrace(common.RoleServer, ciphersuite.KeyExchangeRSA, nil)
	receive := workflow.NewReceive(&message.ApplicationData{})
	serverTrace.Actions = append(serverTrace.Actions, receive)

	relayErr, clientErr, serverErr := s.run(rl, relayTrace, clientTrace, serverTrace)
	s.Require().NoError(relayErr)
	s.Require().NoError(clientErr)
	s.Require().NoError(serverErr)

	relayed := relayTrace.Actions[4].(*workflow.Send).Messages[0].(*message.ApplicationData)
	s.Equal([]byte("ping"), relayed.Data.Value())
	s.Equal([]byte("pong"), receive.Expected[0].(*message.ApplicationData).Data.Value())
}

func (s *RelayTestSuite) TestFatalAlertResync() {
	rl := New(s.clientFacing, s.serverFacing, nil, Options{})
	relayTrace := workflow.RelayTrace(ciphersuite.KeyExchangeRSA, []byte("never"))
	clientTrace := workflow.HandshakeTrace(common.RoleClient, ciphersuite.KeyExchangeRSA, []byte("never"))

	serverActions := workflow.HandshakeActions(common.RoleServer, ciphersuite.KeyExchangeRSA)[:3]
	serverActions = append(serverActions, workflow.NewSend(message.NewAlert(alert.Alert{
		Level:       alert.LevelFatal,
		Description: alert.HandshakeFailure,
	})))

	relayErr, clientErr, serverErr := s.run(rl, relayTrace, clientTrace, workflow.NewTrace(serverActions...))
	s.Require().NoError(relayErr)
	s.Require().NoError(clientErr)
	s.Require().NoError(serverErr)

	s.Require().Equal(4, relayTrace.Len())
	last := relayTrace.Actions[3].(*workflow.Receive)
	s.Equal([]message.Type{message.TypeAlert}, message.Types(last.Expected))
	s.False(rl.ServerFacing().Proceed)
	s.True(last.Mismatched)
	s.False(relayTrace.ExecutedAsPlanned())

	s.Require().Equal(4, clientTrace.Len())
	got := clientTrace.Actions[3].(*workflow.Receive)
	s.Equal([]message.Type{message.TypeAlert}, message.Types(got.Observed))
	s.True(got.Mismatched)
}

func (s *RelayTestSuite) TestRenegotiation() {
	kx := ciphersuite.KeyExchangeRSA
	rl := New(s.clientFacing, s.serverFacing, nil, Options{})

	relayTrace := workflow.NewTrace(workflow.HandshakeActions(common.RoleClient, kx)...)
	relayTrace.Actions = append(relayTrace.Actions, workflow.NewReceive(&message.HelloRequest{}))
	clientTrace := workflow.NewTrace(append(
		workflow.HandshakeActions(common.RoleClient, kx),
		workflow.RenegotiationActions(common.RoleClient)...,
	)...)
	serverTrace := workflow.NewTrace(append(
		workflow.HandshakeActions(common.RoleServer, kx),
		workflow.RenegotiationActions(common.RoleServer)...,
	)...)

	relayErr, clientErr, serverErr := s.run(rl, relayTrace, clientTrace, serverTrace)
	s.Require().NoError(relayErr)
	s.Require().NoError(clientErr)
	s.Require().NoError(serverErr)

	// The relay restarted on a fresh handshake and relayed it.
	s.Require().Equal(4, relayTrace.Len())
	s.True(relayTrace.ExecutedAsPlanned())
	clientFacing, serverFacing := rl.Cursors()
	s.Equal(4, clientFacing)
	s.Equal(4, serverFacing)

	s.Equal(byte(message.HandshakeClientHello), s.clientFacing.Transcript[0])
	s.Equal(s.client.Transcript, s.clientFacing.Transcript)
	s.Equal(s.server.Transcript, s.serverFacing.Transcript)
	s.Equal(s.client.MasterSecret, s.server.MasterSecret)
}

func (s *RelayTestSuite) TestForwardOnly() {
	rl := New(s.clientFacing, s.serverFacing, nil, Options{})
	trace := workflow.NewTrace(
		&workflow.ForwardOnly{From: common.RoleClient},
		&workflow.ForwardOnly{From: common.RoleServer},
	)

	_, err := s.conns[0].Write([]byte("from client"))
	s.Require().NoError(err)
	_, err = s.conns[3].Write([]byte("from server"))
	s.Require().NoError(err)

	s.Require().NoError(rl.Execute(context.Background(), trace))

	buf := make([]byte, 32)
	n, err := s.conns[3].Read(buf)
	s.Require().NoError(err)
	s.Equal("from client", string(buf[:n]))

	n, err = s.conns[0].Read(buf)
	s.Require().NoError(err)
	s.Equal("from server", string(buf[:n]))
}

func TestContextActionsApplyToBothEnds(t *testing.T) {
	clientFacing := newContext(common.RoleServer, transport.NewMemoryPort(), false)
	serverFacing := newContext(common.RoleClient, transport.NewMemoryPort(), false)
	rl := New(clientFacing, serverFacing, nil, Options{})

	trace := workflow.NewTrace(
		&workflow.ChangeProtocolVersion{Version: common.VersionTLS11},
		&workflow.ChangeRandom{Role: common.RoleClient, Random: []byte{1, 2, 3}},
	)
	require.NoError(t, rl.Execute(context.Background(), trace))

	for _, ctx := range []*state.Context{clientFacing, serverFacing} {
		assert.Equal(t, common.VersionTLS11, ctx.Version)
		assert.Equal(t, []byte{1, 2, 3}, ctx.ClientRandom)
	}
	assert.True(t, trace.ExecutedAsPlanned())
}

func TestNoDataPrunesTrace(t *testing.T) {
	clientFacing := newContext(common.RoleServer, transport.NewMemoryPort(), false)
	serverFacing := newContext(common.RoleClient, transport.NewMemoryPort(), false)
	rl := New(clientFacing, serverFacing, nil, Options{})

	trace := workflow.RelayTrace(ciphersuite.KeyExchangeRSA, nil)
	err := rl.Execute(context.Background(), trace)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrWorkflowExecution)
	assert.ErrorIs(t, err, workflow.ErrNoData)

	require.Equal(t, 1, trace.Len())
	assert.Equal(t, workflow.Failed, trace.Actions[0].State())

	// Running a failed action again is refused.
	err = rl.Execute(context.Background(), trace)
	assert.ErrorIs(t, err, workflow.ErrDoubleExecution)
}
