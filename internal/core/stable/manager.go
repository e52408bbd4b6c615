package stable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rl1809/stock-manager/internal/port"
)

const (
	managerMagic         = "MGR"
	managerLayoutVersion = 1

	// MaxMemories is the number of regions a manager can hand out.
	MaxMemories = 255
	// MaxBuckets bounds the bucket table kept in the header page.
	MaxBuckets = 32768
	// DefaultBucketSizePages is 8 MiB per bucket.
	DefaultBucketSizePages = 128

	unallocatedBucket = 0xFF

	offNumBuckets   = 4
	offBucketSize   = 6
	offMemorySizes  = 40
	offBucketTable  = offMemorySizes + MaxMemories*8
	headerPages     = 1
	bucketsStartsAt = headerPages * port.PageSize
)

var (
	// ErrNotManaged means the memory holds data that was not written by a
	// MemoryManager.
	ErrNotManaged = errors.New("memory is not managed by a region allocator")
	// ErrUnsupportedLayout means the persisted layout version or parameters
	// do not match what this build understands.
	ErrUnsupportedLayout = errors.New("unsupported persisted layout")
	// ErrOutOfBuckets means the bucket table is exhausted.
	ErrOutOfBuckets = errors.New("region allocator has no free buckets")
)

// MemoryID tags a virtual region. The binding between an id and the structure
// stored in it is part of the persisted format and must never change.
type MemoryID uint8

// MemoryManager partitions one linear memory into independent virtual
// regions.
type MemoryManager struct {
	mu         sync.RWMutex
	mem        port.Memory
	bucketSize uint64 // pages
	numBuckets uint16
	sizes      [MaxMemories]uint64
	buckets    [MaxMemories][]uint16
}

// InitMemoryManager formats an empty memory or loads the header of an
// existing one. bucketSizePages only applies when formatting; an existing
// image keeps the bucket size it was created with.
func InitMemoryManager(mem port.Memory, bucketSizePages uint16) (*MemoryManager, error) {
	if bucketSizePages == 0 {
		bucketSizePages = DefaultBucketSizePages
	}
	if mem.Size() == 0 {
		return formatManager(mem, bucketSizePages)
	}
	return loadManager(mem)
}

func formatManager(mem port.Memory, bucketSizePages uint16) (*MemoryManager, error) {
	if _, err := mem.Grow(headerPages); err != nil {
		return nil, fmt.Errorf("grow header: %w", err)
	}

	header := make([]byte, offBucketTable+MaxBuckets)
	copy(header, managerMagic)
	header[3] = managerLayoutVersion
	binary.LittleEndian.PutUint16(header[offBucketSize:], bucketSizePages)
	for i := offBucketTable; i < len(header); i++ {
		header[i] = unallocatedBucket
	}
	mem.Write(0, header)

	return &MemoryManager{mem: mem, bucketSize: uint64(bucketSizePages)}, nil
}

func loadManager(mem port.Memory) (*MemoryManager, error) {
	header := make([]byte, offBucketTable+MaxBuckets)
	mem.Read(0, header)

	if string(header[:3]) != managerMagic {
		return nil, ErrNotManaged
	}
	if header[3] != managerLayoutVersion {
		return nil, fmt.Errorf("%w: region allocator version %d", ErrUnsupportedLayout, header[3])
	}

	m := &MemoryManager{
		mem:        mem,
		numBuckets: binary.LittleEndian.Uint16(header[offNumBuckets:]),
		bucketSize: uint64(binary.LittleEndian.Uint16(header[offBucketSize:])),
	}
	if m.bucketSize == 0 || m.numBuckets > MaxBuckets {
		return nil, fmt.Errorf("%w: corrupt region allocator header", ErrUnsupportedLayout)
	}
	for id := range m.sizes {
		m.sizes[id] = binary.LittleEndian.Uint64(header[offMemorySizes+id*8:])
	}
	// Bucket indexes grow with allocation order, so scanning the table in
	// index order rebuilds every region's bucket list in address order.
	for b := 0; b < int(m.numBuckets); b++ {
		owner := header[offBucketTable+b]
		if owner == unallocatedBucket {
			continue
		}
		m.buckets[owner] = append(m.buckets[owner], uint16(b))
	}
	for id := range m.sizes {
		if m.sizes[id] > uint64(len(m.buckets[id]))*m.bucketSize {
			return nil, fmt.Errorf("%w: region %d larger than its buckets", ErrUnsupportedLayout, id)
		}
	}
	return m, nil
}

// Get returns the region bound to id.
func (m *MemoryManager) Get(id MemoryID) *VirtualMemory {
	if int(id) >= MaxMemories {
		panic(fmt.Sprintf("stable: memory id %d out of range", id))
	}
	return &VirtualMemory{manager: m, id: id}
}

// BucketSizePages reports the bucket size the image was formatted with.
func (m *MemoryManager) BucketSizePages() uint64 {
	return m.bucketSize
}

// AllocatedBuckets reports how many buckets have been handed out.
func (m *MemoryManager) AllocatedBuckets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.numBuckets)
}

func (m *MemoryManager) bucketBytes() uint64 {
	return m.bucketSize * port.PageSize
}

func (m *MemoryManager) size(id MemoryID) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizes[id]
}

func (m *MemoryManager) grow(id MemoryID, pages uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.sizes[id]
	newSize := prev + pages
	required := (newSize + m.bucketSize - 1) / m.bucketSize
	have := uint64(len(m.buckets[id]))
	var extra uint64
	if required > have {
		extra = required - have
	}

	if extra > 0 {
		if uint64(m.numBuckets)+extra > MaxBuckets {
			return 0, fmt.Errorf("%w: region %d needs %d more", ErrOutOfBuckets, id, extra)
		}
		needPages := headerPages + (uint64(m.numBuckets)+extra)*m.bucketSize
		if cur := m.mem.Size(); cur < needPages {
			if _, err := m.mem.Grow(needPages - cur); err != nil {
				return 0, err
			}
		}
		for i := uint64(0); i < extra; i++ {
			b := m.numBuckets
			m.mem.Write(offBucketTable+uint64(b), []byte{byte(id)})
			m.buckets[id] = append(m.buckets[id], b)
			m.numBuckets++
		}
		m.mem.Write(offNumBuckets, binary.LittleEndian.AppendUint16(nil, m.numBuckets))
	}

	m.sizes[id] = newSize
	m.mem.Write(offMemorySizes+uint64(id)*8, binary.LittleEndian.AppendUint64(nil, newSize))
	return prev, nil
}

// access runs fn over each physical span backing [offset, offset+n) of a
// region.
func (m *MemoryManager) access(id MemoryID, offset uint64, n int, fn func(addr uint64, lo, hi int)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checkBounds(offset, n, m.sizes[id]*port.PageSize)
	bucketBytes := m.bucketBytes()
	done := 0
	for done < n {
		pos := offset + uint64(done)
		idx := pos / bucketBytes
		within := pos % bucketBytes
		chunk := min(uint64(n-done), bucketBytes-within)
		addr := bucketsStartsAt + uint64(m.buckets[id][idx])*bucketBytes + within
		fn(addr, done, done+int(chunk))
		done += int(chunk)
	}
}

// VirtualMemory is one region of a MemoryManager. It implements port.Memory.
type VirtualMemory struct {
	manager *MemoryManager
	id      MemoryID
}

var _ port.Memory = (*VirtualMemory)(nil)

func (v *VirtualMemory) ID() MemoryID { return v.id }

func (v *VirtualMemory) Size() uint64 {
	return v.manager.size(v.id)
}

func (v *VirtualMemory) Grow(pages uint64) (uint64, error) {
	return v.manager.grow(v.id, pages)
}

func (v *VirtualMemory) Read(offset uint64, dst []byte) {
	v.manager.access(v.id, offset, len(dst), func(addr uint64, lo, hi int) {
		v.manager.mem.Read(addr, dst[lo:hi])
	})
}

func (v *VirtualMemory) Write(offset uint64, src []byte) {
	v.manager.access(v.id, offset, len(src), func(addr uint64, lo, hi int) {
		v.manager.mem.Write(addr, src[lo:hi])
	})
}
