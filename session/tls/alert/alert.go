package alert

import (
	"fmt"

	"github.com/pkg/errors"
)

type Level uint8

const (
	LevelWarning Level = 1
	LevelFatal   Level = 2
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelFatal:
		return "fatal"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

type Description uint8

const (
	CloseNotify                  Description = 0
	UnexpectedMessage            Description = 10
	BadRecordMAC                 Description = 20
	DecryptionFailed             Description = 21
	RecordOverflow               Description = 22
	DecompressionFailure         Description = 30
	HandshakeFailure             Description = 40
	NoCertificate                Description = 41
	BadCertificate               Description = 42
	UnsupportedCertificate       Description = 43
	CertificateRevoked           Description = 44
	CertificateExpired           Description = 45
	CertificateUnknown           Description = 46
	IllegalParameter             Description = 47
	UnknownCA                    Description = 48
	AccessDenied                 Description = 49
	DecodeError                  Description = 50
	DecryptError                 Description = 51
	ExportRestriction            Description = 60
	ProtocolVersion              Description = 70
	InsufficientSecurity         Description = 71
	InternalError                Description = 80
	InappropriateFallback        Description = 86
	UserCanceled                 Description = 90
	NoRenegotiation              Description = 100
	MissingExtension             Description = 109
	UnsupportedExtension         Description = 110
	UnrecognizedName             Description = 112
	BadCertificateStatusResponse Description = 113
	UnknownPSKIdentity           Description = 115
	CertificateRequired          Description = 116
	NoApplicationProtocol        Description = 120
)

// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-7.2
type Alert struct {
	Level       Level
	Description Description
}

func (a Alert) Bytes() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// Fatal reports whether the alert terminates the connection. A close_notify
// ends the session as well regardless of its level.
func (a Alert) Fatal() bool {
	return a.Level == LevelFatal || a.Description == CloseNotify
}

func (a Alert) String() string {
	return a.Level.String() + "/" + a.Description.String()
}

func FromBytes(b [2]byte) Alert {
	return Alert{
		Level:       Level(b[0]),
		Description: Description(b[1]),
	}
}

func (d Description) String() string {
	switch d {
	case CloseNotify:
		return "close_notify"
	case UnexpectedMessage:
		return "unexpected_message"
	case BadRecordMAC:
		return "bad_record_mac"
	case DecryptionFailed:
		return "decryption_failed"
	case RecordOverflow:
		return "record_overflow"
	case DecompressionFailure:
		return "decompression_failure"
	case HandshakeFailure:
		return "handshake_failure"
	case NoCertificate:
		return "no_certificate"
	case BadCertificate:
		return "bad_certificate"
	case UnsupportedCertificate:
		return "unsupported_certificate"
	case CertificateRevoked:
		return "certificate_revoked"
	case CertificateExpired:
		return "certificate_expired"
	case CertificateUnknown:
		return "certificate_unknown"
	case IllegalParameter:
		return "illegal_parameter"
	case UnknownCA:
		return "unknown_ca"
	case AccessDenied:
		return "access_denied"
	case DecodeError:
		return "decode_error"
	case DecryptError:
		return "decrypt_error"
	case ExportRestriction:
		return "export_restriction"
	case ProtocolVersion:
		return "protocol_version"
	case InsufficientSecurity:
		return "insufficient_security"
	case InternalError:
		return "internal_error"
	case InappropriateFallback:
		return "inappropriate_fallback"
	case UserCanceled:
		return "user_canceled"
	case NoRenegotiation:
		return "no_renegotiation"
	case MissingExtension:
		return "missing_extension"
	case UnsupportedExtension:
		return "unsupported_extension"
	case UnrecognizedName:
		return "unrecognized_name"
	case BadCertificateStatusResponse:
		return "bad_certificate_status_response"
	case UnknownPSKIdentity:
		return "unknown_psk_identity"
	case CertificateRequired:
		return "certificate_required"
	case NoApplicationProtocol:
		return "no_application_protocol"
	}

	return fmt.Sprintf("unknown: %d", d)
}

// Error is a local failure that maps onto an alert the peer should see.
type Error struct {
	Description Description
	cause       error
}

func NewError(cause error, desc Description) Error {
	return Error{
		Description: desc,
		cause:       cause,
	}
}

func (e Error) Error() string {
	msg := ""
	if e.cause != nil {
		msg = e.cause.Error()
	}

	return fmt.Sprintf("alert(%s), %s", e.Description.String(), msg)
}

func (e Error) Alert() Alert {
	return Alert{Level: LevelFatal, Description: e.Description}
}

func (e Error) Cause() error {
	return e.cause
}

func (e Error) Unwrap() error { return e.cause }

func (e Error) Is(err error) bool {
	return errors.Is(e.cause, err)
}
