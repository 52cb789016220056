package common

import (
	"log/slog"
	"strconv"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-6.2.1
type ContentType uint8

const (
	ContentInvalid          ContentType = 0
	ContentChangeCipherSpec ContentType = 20
	ContentAlert            ContentType = 21
	ContentHandshake        ContentType = 22
	ContentApplicationData  ContentType = 23
	ContentHeartbeat        ContentType = 24
)

func (c ContentType) String() string {
	switch c {
	case ContentChangeCipherSpec:
		return "change_cipher_spec"
	case ContentAlert:
		return "alert"
	case ContentHandshake:
		return "handshake"
	case ContentApplicationData:
		return "application_data"
	case ContentHeartbeat:
		return "heartbeat"
	}

	return "content(" + strconv.Itoa(int(c)) + ")"
}

// Role is the connection end of a context.
type Role uint8

const (
	RoleClient Role = 1
	RoleServer Role = 2
)

func (r Role) Opposite() Role {
	if r == RoleClient {
		return RoleServer
	}
	return RoleClient
}

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

func (r Role) LogValue() slog.Value {
	return slog.StringValue(r.String())
}

func ParseRole(s string) (Role, bool) {
	switch s {
	case "client":
		return RoleClient, true
	case "server":
		return RoleServer, true
	}
	return 0, false
}
