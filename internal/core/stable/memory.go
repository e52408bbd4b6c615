package stable

import (
	"fmt"
	"sync"

	"github.com/rl1809/stock-manager/internal/port"
)

// VectorMemory is a heap-backed port.Memory. Its contents live as long as the
// value, which makes it the memory of choice for tests and tooling.
type VectorMemory struct {
	mu       sync.RWMutex
	data     []byte
	maxPages uint64 // 0 = unbounded
}

func NewVectorMemory() *VectorMemory {
	return &VectorMemory{}
}

// NewBoundedVectorMemory returns a memory that refuses to grow past maxPages.
func NewBoundedVectorMemory(maxPages uint64) *VectorMemory {
	return &VectorMemory{maxPages: maxPages}
}

func (m *VectorMemory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data)) / port.PageSize
}

func (m *VectorMemory) Grow(pages uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := uint64(len(m.data)) / port.PageSize
	if m.maxPages > 0 && prev+pages > m.maxPages {
		return 0, fmt.Errorf("%w: %d pages requested, limit %d", port.ErrGrowFailed, prev+pages, m.maxPages)
	}
	m.data = append(m.data, make([]byte, pages*port.PageSize)...)
	return prev, nil
}

func (m *VectorMemory) Read(offset uint64, dst []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	checkBounds(offset, len(dst), uint64(len(m.data)))
	copy(dst, m.data[offset:])
}

func (m *VectorMemory) Write(offset uint64, src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	checkBounds(offset, len(src), uint64(len(m.data)))
	copy(m.data[offset:], src)
}

func checkBounds(offset uint64, n int, size uint64) {
	if offset+uint64(n) > size || offset+uint64(n) < offset {
		panic(fmt.Sprintf("stable: access [%d, %d) out of bounds of %d bytes", offset, offset+uint64(n), size))
	}
}
