package stable

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	nodeMagic         = "BTN"
	nodeLayoutVersion = 1
	nodeHeaderSize    = 8

	// minDegree is the B-tree's t: every node but the root holds between
	// t-1 and 2t-1 entries.
	minDegree   = 6
	maxEntries  = 2*minDegree - 1
	minEntries  = minDegree - 1
	maxChildren = 2 * minDegree

	nodeLeaf     = 0
	nodeInternal = 1
)

type node struct {
	addr     uint64
	leaf     bool
	keys     []uint64
	values   [][]byte
	children []uint64
}

func entrySize(maxValueSize uint32) uint64 {
	return 8 + 4 + uint64(maxValueSize)
}

func nodeSize(maxValueSize uint32) uint64 {
	return nodeHeaderSize + maxEntries*entrySize(maxValueSize) + maxChildren*8
}

func (n *node) full() bool {
	return len(n.keys) == maxEntries
}

// search returns the position of key in n, or where it would be inserted.
func (n *node) search(key uint64) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= key })
	return i, i < len(n.keys) && n.keys[i] == key
}

func (n *node) insertEntry(i int, key uint64, value []byte) {
	n.keys = append(n.keys, 0)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key
	n.values = append(n.values, nil)
	copy(n.values[i+1:], n.values[i:])
	n.values[i] = value
}

func (n *node) removeEntry(i int) (uint64, []byte) {
	key, value := n.keys[i], n.values[i]
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.values = append(n.values[:i], n.values[i+1:]...)
	return key, value
}

func (n *node) insertChild(i int, addr uint64) {
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = addr
}

func (n *node) removeChild(i int) uint64 {
	addr := n.children[i]
	n.children = append(n.children[:i], n.children[i+1:]...)
	return addr
}

func (m *BTreeMap[V]) loadNode(addr uint64) *node {
	buf := make([]byte, m.nodeSize)
	m.mem.Read(addr, buf)
	if string(buf[:3]) != nodeMagic || buf[3] != nodeLayoutVersion {
		panic(fmt.Sprintf("stable: corrupt node header at %d", addr))
	}

	count := int(binary.LittleEndian.Uint16(buf[6:]))
	if count > maxEntries {
		panic(fmt.Sprintf("stable: node at %d claims %d entries", addr, count))
	}
	n := &node{
		addr:   addr,
		leaf:   buf[4] == nodeLeaf,
		keys:   make([]uint64, count, maxEntries),
		values: make([][]byte, count, maxEntries),
	}
	es := entrySize(m.maxValueSize)
	for i := 0; i < count; i++ {
		off := nodeHeaderSize + uint64(i)*es
		n.keys[i] = binary.LittleEndian.Uint64(buf[off:])
		vlen := binary.LittleEndian.Uint32(buf[off+8:])
		if vlen > m.maxValueSize {
			panic(fmt.Sprintf("stable: node at %d holds a %d byte value", addr, vlen))
		}
		n.values[i] = append([]byte(nil), buf[off+12:off+12+uint64(vlen)]...)
	}
	if !n.leaf {
		n.children = make([]uint64, count+1, maxChildren)
		off := nodeHeaderSize + maxEntries*es
		for i := range n.children {
			n.children[i] = binary.LittleEndian.Uint64(buf[off+uint64(i)*8:])
		}
	}
	return n
}

func (m *BTreeMap[V]) saveNode(n *node) {
	buf := make([]byte, m.nodeSize)
	copy(buf, nodeMagic)
	buf[3] = nodeLayoutVersion
	if n.leaf {
		buf[4] = nodeLeaf
	} else {
		buf[4] = nodeInternal
	}
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(n.keys)))

	es := entrySize(m.maxValueSize)
	for i, key := range n.keys {
		off := nodeHeaderSize + uint64(i)*es
		binary.LittleEndian.PutUint64(buf[off:], key)
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(len(n.values[i])))
		copy(buf[off+12:], n.values[i])
	}
	if !n.leaf {
		off := nodeHeaderSize + maxEntries*es
		for i, child := range n.children {
			binary.LittleEndian.PutUint64(buf[off+uint64(i)*8:], child)
		}
	}
	m.mem.Write(n.addr, buf)
}

func (m *BTreeMap[V]) newNode(leaf bool) *node {
	return &node{
		addr:   m.alloc.allocate(),
		leaf:   leaf,
		keys:   make([]uint64, 0, maxEntries),
		values: make([][]byte, 0, maxEntries),
	}
}
