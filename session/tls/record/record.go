// Package record frames protocol content into records and applies the
// record protection of a connection end.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc5246#section-6.2
package record

import (
	"encoding/binary"
	"fmt"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/modvar"

	"github.com/pkg/errors"
)

const (
	HeaderLen         = 5
	DatagramHeaderLen = 13

	DefaultMaxFragmentLength = 1 << 14

	// Ciphertext may exceed the plaintext limit by at most 2048 bytes.
	maxCiphertextLen = DefaultMaxFragmentLength + 2048

	maxSequenceNumber = 1<<48 - 1
)

var errRecordTooLong = errors.New("record length exceeds maximum allowed size")

// Record is one wire record. Every wire field is modifiable: the values
// written are the originals with their modifications applied.
type Record struct {
	ContentType modvar.Var[common.ContentType]
	Version     modvar.Var[common.Version]
	Length      modvar.Uint16

	// Datagram only.
	Epoch          modvar.Uint16
	SequenceNumber modvar.Uint64 // 48 bits on the wire.

	// Fragment holds the protected bytes.
	Fragment modvar.Bytes

	// Plaintext is the clear content, before protection when sending and
	// after removing it when receiving.
	Plaintext []byte

	// MaxFragmentLength caps the plaintext this record takes when content
	// is split over records. Zero means DefaultMaxFragmentLength.
	MaxFragmentLength int
}

func New() *Record { return &Record{} }

func (r *Record) maxFragment() int {
	if r.MaxFragmentLength > 0 {
		return r.MaxFragmentLength
	}
	return DefaultMaxFragmentLength
}

func (r *Record) String() string {
	return fmt.Sprintf("record(%s, %s, %d bytes)", r.ContentType.Value(), r.Version.Value(), len(r.Fragment.Value()))
}

func (r *Record) metadata(datagram bool) []byte {
	b := make([]byte, 0, DatagramHeaderLen)
	b = append(b, uint8(r.ContentType.Value()))
	b = append(b, r.Version.Value().Bytes()...)
	if datagram {
		b = binary.BigEndian.AppendUint16(b, r.Epoch.Value())
		b = append(b, common.ToBigEndianBytes(r.SequenceNumber.Value()&maxSequenceNumber, 6)...)
	}
	return binary.BigEndian.AppendUint16(b, r.length())
}

// length defaults an unset Length to the fragment length, still applying
// any modification installed on it.
func (r *Record) length() uint16 {
	if r.Length.IsSet() {
		return r.Length.Value()
	}

	l := uint16(len(r.Fragment.Value()))
	if m := r.Length.Modification(); m != nil {
		l = m.Apply(l)
	}
	return l
}

func (r *Record) Bytes(datagram bool) []byte {
	out := r.metadata(datagram)
	return append(out, r.Fragment.Value()...)
}

// Parse reads one record from b, returning the bytes following it.
// Incomplete input yields common.ErrNeedMoreBytes.
func Parse(b []byte, datagram bool) (r *Record, rest []byte, err error) {
	headerLen := HeaderLen
	if datagram {
		headerLen = DatagramHeaderLen
	}
	if len(b) < headerLen {
		return nil, b, common.ErrNeedMoreBytes
	}

	r = New()
	r.ContentType.Set(common.ContentType(b[0]))
	r.Version.Set(common.Version(binary.BigEndian.Uint16(b[1:3])))
	if datagram {
		r.Epoch.Set(binary.BigEndian.Uint16(b[3:5]))
		seq := uint64(0)
		for _, x := range b[5:11] {
			seq = seq<<8 | uint64(x)
		}
		r.SequenceNumber.Set(seq)
	}

	length := binary.BigEndian.Uint16(b[headerLen-2 : headerLen])
	r.Length.Set(length)
	if int(length) > maxCiphertextLen {
		return nil, b, errors.Wrapf(common.ErrParser, "%s: %d", errRecordTooLong, length)
	}

	if len(b) < headerLen+int(length) {
		return nil, b, common.ErrNeedMoreBytes
	}

	frag := make([]byte, length)
	copy(frag, b[headerLen:])
	r.Fragment.Set(frag)

	return r, b[headerLen+int(length):], nil
}

// ParseAll reads every complete record of b.
func ParseAll(b []byte, datagram bool) (records []*Record, rest []byte, err error) {
	for len(b) > 0 {
		r, next, err := Parse(b, datagram)
		if errors.Is(err, common.ErrNeedMoreBytes) {
			break
		}
		if err != nil {
			return records, b, err
		}
		records = append(records, r)
		b = next
	}
	return records, b, nil
}

// Group splits records into maximal runs sharing a content type.
func Group(records []*Record) [][]*Record {
	var groups [][]*Record
	for i, r := range records {
		if i == 0 || r.ContentType.Value() != records[i-1].ContentType.Value() {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
	}
	return groups
}
