package shuffle

// Entry is one sorted key/value record produced by the sorting engine and
// consumed through the final iterator.
type Entry struct {
	Key   []byte
	Value []byte
}

// PeekableIterator is a sequence cursor over sorted entries supporting
// look-ahead of the next element without consuming it.
//
// Usage follows the scanner idiom: Next advances and reports whether an
// entry is available, Entry returns the current one, and Err surfaces any
// read failure after Next returns false.
type PeekableIterator interface {
	// Next advances to the next entry. It returns false when the sequence
	// is exhausted or a read error occurred (check Err).
	Next() bool

	// Entry returns the current entry. Valid only after Next returned true;
	// the returned slices are valid until the next call to Next or Close.
	Entry() Entry

	// Peek returns the upcoming entry without consuming it. ok is false at
	// end of sequence.
	Peek() (e Entry, ok bool)

	// Err returns the first error encountered while reading, if any.
	Err() error

	// Close releases underlying resources.
	Close() error
}

// EmptyIterator returns a valid iterator yielding no entries. Iterator
// returns it for partitions that never accepted a byte, so downstream code
// never sees a nil iterator.
func EmptyIterator() PeekableIterator {
	return emptyIterator{}
}

type emptyIterator struct{}

func (emptyIterator) Next() bool          { return false }
func (emptyIterator) Entry() Entry        { return Entry{} }
func (emptyIterator) Peek() (Entry, bool) { return Entry{}, false }
func (emptyIterator) Err() error          { return nil }
func (emptyIterator) Close() error        { return nil }
