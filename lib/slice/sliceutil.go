package sliceutil

func Map[From any, To any](v []From, f func(From) To) []To {
	out := make([]To, len(v))
	for idx := 0; idx < len(v); idx++ {
		out[idx] = f(v[idx])
	}
	return out
}

// Filter keeps the elements for which keep returns true, in order.
func Filter[T any](v []T, keep func(T) bool) []T {
	out := make([]T, 0, len(v))
	for _, e := range v {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Chunk splits v into consecutive pieces of at most size elements.
// An empty v yields no chunks.
func Chunk[T any](v []T, size int) [][]T {
	if size <= 0 {
		panic("chunk size must be positive")
	}

	out := make([][]T, 0, (len(v)+size-1)/size)
	for len(v) > 0 {
		n := min(size, len(v))
		out = append(out, v[:n:n])
		v = v[n:]
	}
	return out
}
