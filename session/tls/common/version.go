package common

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Version uint16

const (
	VersionSSL30  Version = 0x0300
	VersionTLS10  Version = 0x0301
	VersionTLS11  Version = 0x0302
	VersionTLS12  Version = 0x0303
	VersionTLS13  Version = 0x0304
	VersionDTLS10 Version = 0xfeff
	VersionDTLS12 Version = 0xfefd
)

func NewVersion(b [2]uint8) Version {
	v := uint16(b[0]) << 8
	v |= uint16(b[1])
	return Version(v)
}

func (v Version) Bytes() []byte {
	b := make([]byte, 2)
	b[0] = uint8(v >> 8)
	b[1] = uint8(v)
	return b
}

// IsDTLS reports whether records of this version carry epoch and sequence number.
func (v Version) IsDTLS() bool { return v>>8 == 0xfe }

// ExplicitIV reports whether CBC records carry a per-record IV.
// TLS 1.0 and SSL 3.0 chain the IV from the previous record instead.
func (v Version) ExplicitIV() bool {
	if v.IsDTLS() {
		return true
	}
	return v >= VersionTLS11
}

// SHA256PRF reports whether the PRF is P_hash over the suite hash
// rather than the MD5/SHA-1 split used before TLS 1.2.
func (v Version) SHA256PRF() bool {
	return v == VersionTLS12 || v == VersionDTLS12 || v == VersionTLS13
}

func (v Version) String() string {
	switch v {
	case VersionSSL30:
		return "SSL 3.0"
	case VersionTLS10:
		return "TLS 1.0"
	case VersionTLS11:
		return "TLS 1.1"
	case VersionTLS12:
		return "TLS 1.2"
	case VersionTLS13:
		return "TLS 1.3"
	case VersionDTLS10:
		return "DTLS 1.0"
	case VersionDTLS12:
		return "DTLS 1.2"
	}

	return strconv.FormatUint(uint64(v), 16)
}

// ParseVersion accepts names such as "TLS12", "tls1.2" or "DTLS 1.2".
func ParseVersion(s string) (Version, error) {
	name := strings.ToUpper(strings.NewReplacer(" ", "", ".", "", "_", "").Replace(s))
	switch name {
	case "SSL3", "SSL30":
		return VersionSSL30, nil
	case "TLS10":
		return VersionTLS10, nil
	case "TLS11":
		return VersionTLS11, nil
	case "TLS12":
		return VersionTLS12, nil
	case "TLS13":
		return VersionTLS13, nil
	case "DTLS10":
		return VersionDTLS10, nil
	case "DTLS12":
		return VersionDTLS12, nil
	}

	return 0, errors.Wrapf(ErrConfiguration, "unknown protocol version %q", s)
}

// Older reports whether v predates o. Datagram versions count downwards.
func (v Version) Older(o Version) bool {
	if v.IsDTLS() && o.IsDTLS() {
		return v > o
	}
	return v < o
}

// MinVersion returns the older of a and b.
func MinVersion(a, b Version) Version {
	if a.Older(b) {
		return a
	}
	return b
}
