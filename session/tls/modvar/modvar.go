// Package modvar implements modifiable variables: a field value that keeps
// its original content and an optional transformation applied lazily when
// the value is read for serialization.
package modvar

type Var[T any] struct {
	original T
	set      bool
	mod      Modification[T]
}

type (
	Uint8  = Var[uint8]
	Uint16 = Var[uint16]
	Uint32 = Var[uint32]
	Uint64 = Var[uint64]
	Bytes  = Var[[]byte]
)

func New[T any](v T) Var[T] {
	return Var[T]{original: v, set: true}
}

// Set replaces the original value. An installed modification is kept.
func (v *Var[T]) Set(x T) {
	v.original = x
	v.set = true
}

func (v Var[T]) Original() T { return v.original }

// Value is the original value with the modification applied.
func (v Var[T]) Value() T {
	if v.mod == nil {
		return v.original
	}
	return v.mod.Apply(v.original)
}

func (v *Var[T]) Modify(m Modification[T]) { v.mod = m }

func (v Var[T]) Modification() Modification[T] { return v.mod }

// Reset drops the modification, keeping the original value.
func (v *Var[T]) Reset() { v.mod = nil }

// Clear forgets both the value and the modification.
func (v *Var[T]) Clear() { *v = Var[T]{} }

func (v Var[T]) IsModified() bool { return v.mod != nil }

// IsSet reports whether a value was ever assigned. Unset fields get
// defaults from the connection state when a message is prepared.
func (v Var[T]) IsSet() bool { return v.set }
