package shuffle

// Buffer is an opaque, length-bearing block of received bytes. The network
// layer serializes records into it; the core never inspects the contents.
// Ownership transfers to a Buffers collection on AddBuffer: the caller must
// not reuse the backing array afterwards.
type Buffer []byte

// Len returns the number of bytes held by the buffer.
func (b Buffer) Len() int {
	return len(b)
}
