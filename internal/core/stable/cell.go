package stable

import (
	"encoding/binary"
	"fmt"

	"github.com/rl1809/stock-manager/internal/port"
)

const (
	cellMagic         = "SCL"
	cellLayoutVersion = 1
	cellHeaderSize    = 8 // magic, version, value length (u32)
)

// Cell is a single durable value. Reads are served from a copy of the last
// value written, which always matches the region.
type Cell[T any] struct {
	mem   port.Memory
	codec Codec[T]
	value T
}

// InitCell loads the value stored in mem, or stores def when mem is empty.
func InitCell[T any](mem port.Memory, codec Codec[T], def T) (*Cell[T], error) {
	c := &Cell[T]{mem: mem, codec: codec}
	if mem.Size() == 0 {
		if err := c.Set(def); err != nil {
			return nil, err
		}
		return c, nil
	}

	header := make([]byte, cellHeaderSize)
	mem.Read(0, header)
	if string(header[:3]) != cellMagic {
		return nil, fmt.Errorf("%w: region is not a cell", ErrUnsupportedLayout)
	}
	if header[3] != cellLayoutVersion {
		return nil, fmt.Errorf("%w: cell version %d", ErrUnsupportedLayout, header[3])
	}
	n := binary.LittleEndian.Uint32(header[4:])
	if uint64(cellHeaderSize)+uint64(n) > mem.Size()*port.PageSize {
		return nil, fmt.Errorf("%w: cell length %d exceeds region", ErrUnsupportedLayout, n)
	}
	data := make([]byte, n)
	mem.Read(cellHeaderSize, data)
	v, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode cell: %w", err)
	}
	c.value = v
	return c, nil
}

func (c *Cell[T]) Get() T {
	return c.value
}

// Set persists v. On error the stored and cached values are unchanged.
func (c *Cell[T]) Set(v T) error {
	data, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	if err := ensureCapacity(c.mem, uint64(cellHeaderSize+len(data))); err != nil {
		return err
	}

	buf := make([]byte, cellHeaderSize+len(data))
	copy(buf, cellMagic)
	buf[3] = cellLayoutVersion
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(data)))
	copy(buf[cellHeaderSize:], data)
	c.mem.Write(0, buf)

	c.value = v
	return nil
}

// ensureCapacity grows mem so that the first size bytes are addressable.
func ensureCapacity(mem port.Memory, size uint64) error {
	pages := (size + port.PageSize - 1) / port.PageSize
	if cur := mem.Size(); cur < pages {
		if _, err := mem.Grow(pages - cur); err != nil {
			return err
		}
	}
	return nil
}
