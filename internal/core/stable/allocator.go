package stable

import (
	"encoding/binary"
	"fmt"

	"github.com/rl1809/stock-manager/internal/port"
)

const (
	allocatorMagic         = "BTA"
	allocatorLayoutVersion = 1
	allocatorHeaderSize    = 64
	chunkHeaderSize        = 16 // allocated flag, next free chunk

	offChunkSize = 8
	offCarved    = 16
	offAllocated = 24
	offFreeHead  = 32

	nullAddr uint64 = 0
)

// allocator hands out fixed-size chunks of a region, starting at base. Freed
// chunks form a singly linked free list threaded through their headers.
type allocator struct {
	mem       port.Memory
	addr      uint64 // where the allocator header lives
	base      uint64 // first chunk
	chunkSize uint64 // including chunkHeaderSize
	carved    uint64
	allocated uint64
	freeHead  uint64
}

func newAllocator(mem port.Memory, addr uint64, payloadSize uint64) *allocator {
	a := &allocator{
		mem:       mem,
		addr:      addr,
		base:      addr + allocatorHeaderSize,
		chunkSize: payloadSize + chunkHeaderSize,
		freeHead:  nullAddr,
	}
	a.save()
	return a
}

func loadAllocator(mem port.Memory, addr uint64, payloadSize uint64) (*allocator, error) {
	buf := make([]byte, allocatorHeaderSize)
	mem.Read(addr, buf)
	if string(buf[:3]) != allocatorMagic {
		return nil, fmt.Errorf("%w: missing chunk allocator", ErrUnsupportedLayout)
	}
	if buf[3] != allocatorLayoutVersion {
		return nil, fmt.Errorf("%w: chunk allocator version %d", ErrUnsupportedLayout, buf[3])
	}
	a := &allocator{
		mem:       mem,
		addr:      addr,
		base:      addr + allocatorHeaderSize,
		chunkSize: binary.LittleEndian.Uint64(buf[offChunkSize:]),
		carved:    binary.LittleEndian.Uint64(buf[offCarved:]),
		allocated: binary.LittleEndian.Uint64(buf[offAllocated:]),
		freeHead:  binary.LittleEndian.Uint64(buf[offFreeHead:]),
	}
	if a.chunkSize != payloadSize+chunkHeaderSize {
		return nil, fmt.Errorf("%w: chunk size %d, expected %d", ErrUnsupportedLayout,
			a.chunkSize, payloadSize+chunkHeaderSize)
	}
	return a, nil
}

func (a *allocator) save() {
	buf := make([]byte, allocatorHeaderSize)
	copy(buf, allocatorMagic)
	buf[3] = allocatorLayoutVersion
	binary.LittleEndian.PutUint64(buf[offChunkSize:], a.chunkSize)
	binary.LittleEndian.PutUint64(buf[offCarved:], a.carved)
	binary.LittleEndian.PutUint64(buf[offAllocated:], a.allocated)
	binary.LittleEndian.PutUint64(buf[offFreeHead:], a.freeHead)
	a.mem.Write(a.addr, buf)
}

// allocate returns the payload address of a fresh chunk. Running out of
// memory is unrecoverable for the map that owns the allocator.
func (a *allocator) allocate() uint64 {
	var chunk uint64
	if a.freeHead != nullAddr {
		chunk = a.freeHead
		hdr := make([]byte, chunkHeaderSize)
		a.mem.Read(chunk, hdr)
		if hdr[0] != 0 {
			panic(fmt.Sprintf("stable: free list entry %d is allocated", chunk))
		}
		a.freeHead = binary.LittleEndian.Uint64(hdr[8:])
	} else {
		chunk = a.base + a.carved*a.chunkSize
		if err := ensureCapacity(a.mem, chunk+a.chunkSize); err != nil {
			panic(fmt.Sprintf("stable: cannot grow map region: %v", err))
		}
		a.carved++
	}

	hdr := make([]byte, chunkHeaderSize)
	hdr[0] = 1
	a.mem.Write(chunk, hdr)
	a.allocated++
	a.save()
	return chunk + chunkHeaderSize
}

func (a *allocator) free(addr uint64) {
	chunk := addr - chunkHeaderSize
	hdr := make([]byte, chunkHeaderSize)
	a.mem.Read(chunk, hdr)
	if hdr[0] != 1 {
		panic(fmt.Sprintf("stable: double free of chunk %d", chunk))
	}
	hdr[0] = 0
	binary.LittleEndian.PutUint64(hdr[8:], a.freeHead)
	a.mem.Write(chunk, hdr)

	a.freeHead = chunk
	a.allocated--
	a.save()
}
