package record

import (
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/recordcipher"
	"tlsflow/transport"

	"github.com/pkg/errors"
)

// Slot is the protection state of one direction. It is always replaced
// as a whole.
type Slot struct {
	Cipher recordcipher.Cipher
	Seq    uint64
	Epoch  uint16
}

func nullSlot() Slot { return Slot{Cipher: recordcipher.Null{}} }

// Layer protects outgoing and opens incoming records for one connection end.
type Layer struct {
	datagram bool

	read, write Slot

	// Received bytes not yet forming a complete record.
	pending []byte
}

func NewLayer(datagram bool) *Layer {
	return &Layer{datagram: datagram, read: nullSlot(), write: nullSlot()}
}

func (l *Layer) Datagram() bool     { return l.datagram }
func (l *Layer) SetDatagram(d bool) { l.datagram = d }
func (l *Layer) ReadSlot() Slot     { return l.read }
func (l *Layer) WriteSlot() Slot    { return l.write }
func (l *Layer) Pending() []byte    { return l.pending }
func (l *Layer) DiscardPending()    { l.pending = nil }

// InstallWrite starts protecting with c from sequence number zero.
// Datagram versions move to the next epoch.
func (l *Layer) InstallWrite(c recordcipher.Cipher) {
	l.write = l.next(l.write, c)
}

func (l *Layer) InstallRead(c recordcipher.Cipher) {
	l.read = l.next(l.read, c)
}

func (l *Layer) next(s Slot, c recordcipher.Cipher) Slot {
	n := Slot{Cipher: c, Epoch: s.Epoch}
	if l.datagram {
		n.Epoch++
	}
	return n
}

// SwapSlots installs read and write as they are, sequence numbers included,
// returning the slots they replace.
func (l *Layer) SwapSlots(read, write Slot) (prevRead, prevWrite Slot) {
	prevRead, prevWrite = l.read, l.write
	l.read, l.write = read, write
	return prevRead, prevWrite
}

// NullSlots keeps the sequence state of the current slots but drops
// their protection.
func (l *Layer) NullSlots() (read, write Slot) {
	read, write = l.read, l.write
	read.Cipher, write.Cipher = recordcipher.Null{}, recordcipher.Null{}
	return read, write
}

func (l *Layer) additionalData(s Slot, r *Record) recordcipher.AdditionalData {
	seq := s.Seq
	if l.datagram {
		seq = uint64(r.Epoch.Value())<<48 | r.SequenceNumber.Value()&maxSequenceNumber
	}
	return recordcipher.AdditionalData{
		Seq:     seq,
		Type:    r.ContentType.Value(),
		Version: r.Version.Value(),
	}
}

// Protect spreads content over records, each taking at most its maximum
// fragment length. More records are created when the given ones cannot
// hold everything, and given records left over carry empty fragments.
// Records keep values already assigned to their fields.
func (l *Layer) Protect(ct common.ContentType, version common.Version, content []byte, records []*Record) ([]*Record, []byte, error) {
	out := make([]*Record, 0, len(records))
	for i := 0; i < len(records) || len(content) > 0 || i == 0; i++ {
		var r *Record
		if i < len(records) {
			r = records[i]
		} else {
			r = New()
		}

		n := min(len(content), r.maxFragment())
		r.Plaintext, content = content[:n:n], content[n:]
		out = append(out, r)
	}

	var wire []byte
	for _, r := range out {
		if err := l.protect(ct, version, r); err != nil {
			return nil, nil, err
		}
		wire = append(wire, r.Bytes(l.datagram)...)
	}
	return out, wire, nil
}

func (l *Layer) protect(ct common.ContentType, version common.Version, r *Record) error {
	if !r.ContentType.IsSet() {
		r.ContentType.Set(ct)
	}
	if !r.Version.IsSet() {
		r.Version.Set(version)
	}
	if l.datagram {
		r.Epoch.Set(l.write.Epoch)
		r.SequenceNumber.Set(l.write.Seq)
	}

	frag, err := l.write.Cipher.Encrypt(l.additionalData(l.write, r), r.Plaintext)
	if err != nil {
		return errors.Wrap(err, "protecting record")
	}

	r.Fragment.Set(frag)
	r.Length.Set(uint16(len(r.Fragment.Value())))
	l.write.Seq++
	return nil
}

// Unprotect removes the read slot's protection from r into r.Plaintext.
func (l *Layer) Unprotect(r *Record) error {
	plain, err := l.read.Cipher.Decrypt(l.additionalData(l.read, r), r.Fragment.Value())
	if err != nil {
		return errors.Wrapf(err, "opening %s", r)
	}

	r.Plaintext = plain
	l.read.Seq++
	return nil
}

// Unread puts records back in front of the pending bytes, so the next
// ReadBatch returns them again. They must not have been unprotected.
func (l *Layer) Unread(records []*Record) {
	var b []byte
	for _, r := range records {
		b = append(b, r.Bytes(l.datagram)...)
	}
	l.pending = append(b, l.pending...)
}

// ReadBatch fetches from port until at least one complete record is
// buffered and returns every complete record. It returns no records once
// the port reaches a terminal state first, leaving partial bytes in
// Pending.
func (l *Layer) ReadBatch(port transport.Port) ([]*Record, error) {
	for {
		records, rest, err := ParseAll(l.pending, l.datagram)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			l.pending = rest
			return records, nil
		}

		if port.State().Terminal() {
			return nil, nil
		}

		data, err := port.FetchData()
		if err != nil {
			return nil, errors.Wrap(common.ErrIO, err.Error())
		}
		l.pending = append(l.pending, data...)

		if len(data) == 0 && port.State().Terminal() {
			return nil, nil
		}
	}
}
