package modvar

import (
	"bytes"
	"fmt"
)

type Modification[T any] interface {
	Apply(T) T
	String() string
}

type Integer interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Explicit replaces the value.
type Explicit[T any] struct{ Value T }

func (m Explicit[T]) Apply(T) T      { return m.Value }
func (m Explicit[T]) String() string { return fmt.Sprintf("explicit(%v)", m.Value) }

// Func applies an arbitrary function.
type Func[T any] func(T) T

func (f Func[T]) Apply(v T) T    { return f(v) }
func (f Func[T]) String() string { return "func" }

// Add adds Delta, wrapping on overflow.
type Add[T Integer] struct{ Delta T }

func (m Add[T]) Apply(v T) T    { return v + m.Delta }
func (m Add[T]) String() string { return fmt.Sprintf("add(%d)", m.Delta) }

// XorInt flips the bits set in Mask.
type XorInt[T Integer] struct{ Mask T }

func (m XorInt[T]) Apply(v T) T    { return v ^ m.Mask }
func (m XorInt[T]) String() string { return fmt.Sprintf("xor(%#x)", m.Mask) }

// Xor XORs Mask onto the value starting at Offset. Bytes past the end of
// the value are ignored.
type Xor struct {
	Mask   []byte
	Offset int
}

func (m Xor) Apply(v []byte) []byte {
	out := bytes.Clone(v)
	for i, b := range m.Mask {
		if idx := m.Offset + i; idx >= 0 && idx < len(out) {
			out[idx] ^= b
		}
	}
	return out
}

func (m Xor) String() string { return fmt.Sprintf("xor(%x@%d)", m.Mask, m.Offset) }

type Append struct{ Suffix []byte }

func (m Append) Apply(v []byte) []byte {
	out := make([]byte, 0, len(v)+len(m.Suffix))
	out = append(out, v...)
	return append(out, m.Suffix...)
}

func (m Append) String() string { return fmt.Sprintf("append(%x)", m.Suffix) }

type Prepend struct{ Prefix []byte }

func (m Prepend) Apply(v []byte) []byte {
	out := make([]byte, 0, len(v)+len(m.Prefix))
	out = append(out, m.Prefix...)
	return append(out, v...)
}

func (m Prepend) String() string { return fmt.Sprintf("prepend(%x)", m.Prefix) }

// Delete removes Count bytes at Start, clamped to the value.
type Delete struct{ Start, Count int }

func (m Delete) Apply(v []byte) []byte {
	start := min(max(m.Start, 0), len(v))
	end := min(start+max(m.Count, 0), len(v))

	out := make([]byte, 0, len(v)-(end-start))
	out = append(out, v[:start]...)
	return append(out, v[end:]...)
}

func (m Delete) String() string { return fmt.Sprintf("delete(%d,%d)", m.Start, m.Count) }

// Chain applies modifications left to right.
type Chain[T any] []Modification[T]

func (c Chain[T]) Apply(v T) T {
	for _, m := range c {
		v = m.Apply(v)
	}
	return v
}

func (c Chain[T]) String() string {
	s := "chain("
	for i, m := range c {
		if i > 0 {
			s += ","
		}
		s += m.String()
	}
	return s + ")"
}
