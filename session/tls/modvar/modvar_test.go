package modvar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVar(t *testing.T) {
	var v Uint16
	assert.False(t, v.IsSet())
	assert.Zero(t, v.Value())

	v.Set(0x0303)
	assert.True(t, v.IsSet())
	assert.False(t, v.IsModified())
	assert.Equal(t, uint16(0x0303), v.Value())

	v.Modify(Explicit[uint16]{Value: 0x0301})
	assert.True(t, v.IsModified())
	assert.Equal(t, uint16(0x0301), v.Value())
	assert.Equal(t, uint16(0x0303), v.Original())

	// A new original value goes through the same modification.
	v.Modify(Add[uint16]{Delta: 1})
	v.Set(0x0302)
	assert.Equal(t, uint16(0x0303), v.Value())

	v.Reset()
	assert.Equal(t, uint16(0x0302), v.Value())

	v.Clear()
	assert.False(t, v.IsSet())
}

func TestIntegerModifications(t *testing.T) {
	v := New[uint8](0xff)

	v.Modify(Add[uint8]{Delta: 1})
	assert.Equal(t, uint8(0), v.Value(), "wraps around")

	v.Modify(XorInt[uint8]{Mask: 0x0f})
	assert.Equal(t, uint8(0xf0), v.Value())
}

func TestBytesModifications(t *testing.T) {
	orig := []byte{1, 2, 3, 4}

	testcases := []struct {
		desc     string
		mod      Modification[[]byte]
		expected []byte
	}{
		{"explicit", Explicit[[]byte]{Value: []byte{9}}, []byte{9}},
		{"xor", Xor{Mask: []byte{0xff, 0xff}, Offset: 1}, []byte{1, 0xfd, 0xfc, 4}},
		{"xor out of range", Xor{Mask: []byte{1, 1}, Offset: 3}, []byte{1, 2, 3, 5}},
		{"append", Append{Suffix: []byte{5}}, []byte{1, 2, 3, 4, 5}},
		{"prepend", Prepend{Prefix: []byte{0}}, []byte{0, 1, 2, 3, 4}},
		{"delete", Delete{Start: 1, Count: 2}, []byte{1, 4}},
		{"delete clamped", Delete{Start: 3, Count: 10}, []byte{1, 2, 3}},
		{"func", Func[[]byte](func(b []byte) []byte { return b[:1] }), []byte{1}},
		{"chain", Chain[[]byte]{Append{Suffix: []byte{5}}, Delete{Start: 0, Count: 1}}, []byte{2, 3, 4, 5}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			v := New(orig)
			v.Modify(tc.mod)

			assert.Equal(t, tc.expected, v.Value())
			assert.Equal(t, []byte{1, 2, 3, 4}, orig, "original must not be mutated")
			assert.NotEmpty(t, tc.mod.String())
		})
	}
}

func TestChainString(t *testing.T) {
	c := Chain[uint16]{Add[uint16]{Delta: 2}, Explicit[uint16]{Value: 7}}
	assert.Equal(t, "chain(add(2),explicit(7))", c.String())
	assert.Equal(t, uint16(7), c.Apply(1))
}
