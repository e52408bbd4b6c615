package port

import "errors"

// PageSize is the unit in which linear memories grow.
const PageSize = 64 * 1024

// ErrGrowFailed is returned when a memory cannot be extended.
var ErrGrowFailed = errors.New("memory grow failed")

// Memory is a growable, byte-addressable linear memory whose contents survive
// process restarts (or, for heap implementations, the lifetime of the value).
type Memory interface {
	// Size returns the current size in pages
	Size() uint64

	// Grow extends the memory by the given number of zeroed pages and returns
	// the previous size in pages
	Grow(pages uint64) (uint64, error)

	// Read copies len(dst) bytes starting at offset. Panics when out of bounds
	Read(offset uint64, dst []byte)

	// Write copies src to offset. Panics when out of bounds
	Write(offset uint64, src []byte)
}
