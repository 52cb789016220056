package workflow

import (
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/message"
)

// HandshakeActions returns a full handshake as role runs it. ECDHE key
// exchanges add a ServerKeyExchange to the server flight.
func HandshakeActions(role common.Role, kx ciphersuite.KeyExchange) []Action {
	serverFlight := func() []message.Message {
		ms := []message.Message{&message.ServerHello{}, &message.Certificate{}}
		if kx == ciphersuite.KeyExchangeECDHE_RSA {
			ms = append(ms, &message.ServerKeyExchange{})
		}
		return append(ms, &message.ServerHelloDone{})
	}
	clientFinish := func() []message.Message {
		return []message.Message{&message.ClientKeyExchange{}, &message.ChangeCipherSpec{}, &message.Finished{}}
	}
	serverFinish := func() []message.Message {
		return []message.Message{&message.ChangeCipherSpec{}, &message.Finished{}}
	}

	if role == common.RoleServer {
		return []Action{
			NewReceive(&message.ClientHello{}),
			NewSend(serverFlight()...),
			NewReceive(clientFinish()...),
			NewSend(serverFinish()...),
		}
	}
	return []Action{
		NewSend(&message.ClientHello{}),
		NewReceive(serverFlight()...),
		NewSend(clientFinish()...),
		NewReceive(serverFinish()...),
	}
}

// ApplicationDataActions sends data once and takes one answer. The client
// speaks first.
func ApplicationDataActions(role common.Role, data []byte) []Action {
	if role == common.RoleServer {
		return []Action{
			NewReceive(&message.ApplicationData{}),
			NewSend(message.NewApplicationData(data)),
		}
	}
	return []Action{
		NewSend(message.NewApplicationData(data)),
		NewReceive(&message.ApplicationData{}),
	}
}

// RenegotiationActions has the server ask for a new handshake with a
// HelloRequest. Both ends then restart on a fresh handshake trace.
func RenegotiationActions(role common.Role) []Action {
	if role == common.RoleServer {
		return []Action{NewSend(&message.HelloRequest{}), &Renegotiate{}}
	}
	return []Action{NewReceive(&message.HelloRequest{}), &Renegotiate{}}
}

// ClosingActions ends the session with a close_notify from role.
func ClosingActions(role common.Role, closer common.Role) []Action {
	if role == closer {
		return []Action{NewSend(&message.Alert{})}
	}
	return []Action{NewReceive(&message.Alert{})}
}

// HandshakeTrace is a full handshake for role followed by one exchange of
// application data when data is not nil.
func HandshakeTrace(role common.Role, kx ciphersuite.KeyExchange, data []byte) *Trace {
	actions := HandshakeActions(role, kx)
	if data != nil {
		actions = append(actions, ApplicationDataActions(role, data)...)
	}
	t := NewTrace(actions...)
	t.Description = role.String() + " handshake"
	return t
}

// RelayTrace is the trace a relay runs between a client and a server. It
// is written from the client's side.
func RelayTrace(kx ciphersuite.KeyExchange, data []byte) *Trace {
	t := HandshakeTrace(common.RoleClient, kx, data)
	t.Description = "relayed handshake"
	return t
}
