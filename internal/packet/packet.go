// Package packet provides a zero-copy, non-owning view over a received
// frame's bytes and a bounded append-only builder for constructing response
// frames in place inside the UMEM pool.
package packet

// View is a read-only, non-owning slice over a single frame's bytes. It's
// valid only while its originating rx descriptor hasn't yet been returned
// to the fill ring — the reactor constructs one per callback invocation and
// the callback must not retain it past return.
type View struct {
	Data []byte
}

// New wraps data as a View. Ownership stays with the caller; View never
// copies.
func New(data []byte) View {
	return View{Data: data}
}

// Len returns the view's length in bytes.
func (v View) Len() int { return len(v.Data) }

// TrimFront returns a new view with the first n bytes dropped. If n
// exceeds the view's length, the result is an empty view rather than a
// negative-length slice.
func (v View) TrimFront(n int) View {
	if n >= len(v.Data) {
		return View{Data: v.Data[len(v.Data):]}
	}
	if n <= 0 {
		return v
	}
	return View{Data: v.Data[n:]}
}
