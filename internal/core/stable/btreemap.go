package stable

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/rl1809/stock-manager/internal/port"
)

const (
	btreeMagic         = "BTR"
	btreeLayoutVersion = 1
	btreeHeaderSize    = 64

	offMaxValueSize = 4
	offRoot         = 8
	offLength       = 16
)

// BTreeMap is an ordered map from uint64 keys to values of type V, stored
// entirely inside one region. Point operations touch O(log n) nodes.
//
// A BTreeMap is not safe for concurrent use.
type BTreeMap[V any] struct {
	mem          port.Memory
	codec        Codec[V]
	maxValueSize uint32
	nodeSize     uint64
	alloc        *allocator
	root         uint64
	length       uint64
}

// InitBTreeMap opens the map stored in mem, formatting mem when it is empty.
// Reopening with a codec of a different MaxSize fails.
func InitBTreeMap[V any](mem port.Memory, codec Codec[V]) (*BTreeMap[V], error) {
	m := &BTreeMap[V]{
		mem:          mem,
		codec:        codec,
		maxValueSize: codec.MaxSize(),
		nodeSize:     nodeSize(codec.MaxSize()),
	}

	if mem.Size() == 0 {
		if err := ensureCapacity(mem, btreeHeaderSize+allocatorHeaderSize); err != nil {
			return nil, fmt.Errorf("grow map header: %w", err)
		}
		m.alloc = newAllocator(mem, btreeHeaderSize, m.nodeSize)
		m.saveHeader()
		return m, nil
	}

	buf := make([]byte, btreeHeaderSize)
	mem.Read(0, buf)
	if string(buf[:3]) != btreeMagic {
		return nil, fmt.Errorf("%w: region is not a btree map", ErrUnsupportedLayout)
	}
	if buf[3] != btreeLayoutVersion {
		return nil, fmt.Errorf("%w: btree map version %d", ErrUnsupportedLayout, buf[3])
	}
	if stored := binary.LittleEndian.Uint32(buf[offMaxValueSize:]); stored != m.maxValueSize {
		return nil, fmt.Errorf("%w: map stores values up to %d bytes, codec allows %d",
			ErrUnsupportedLayout, stored, m.maxValueSize)
	}
	m.root = binary.LittleEndian.Uint64(buf[offRoot:])
	m.length = binary.LittleEndian.Uint64(buf[offLength:])

	alloc, err := loadAllocator(mem, btreeHeaderSize, m.nodeSize)
	if err != nil {
		return nil, err
	}
	m.alloc = alloc
	return m, nil
}

func (m *BTreeMap[V]) saveHeader() {
	buf := make([]byte, btreeHeaderSize)
	copy(buf, btreeMagic)
	buf[3] = btreeLayoutVersion
	binary.LittleEndian.PutUint32(buf[offMaxValueSize:], m.maxValueSize)
	binary.LittleEndian.PutUint64(buf[offRoot:], m.root)
	binary.LittleEndian.PutUint64(buf[offLength:], m.length)
	m.mem.Write(0, buf)
}

func (m *BTreeMap[V]) Len() uint64 {
	return m.length
}

func (m *BTreeMap[V]) decode(key uint64, data []byte) V {
	v, err := m.codec.Decode(data)
	if err != nil {
		panic(fmt.Sprintf("stable: cannot decode value stored under key %d: %v", key, err))
	}
	return v
}

func (m *BTreeMap[V]) Get(key uint64) (V, bool) {
	var zero V
	if m.root == nullAddr {
		return zero, false
	}
	n := m.loadNode(m.root)
	for {
		i, found := n.search(key)
		if found {
			return m.decode(key, n.values[i]), true
		}
		if n.leaf {
			return zero, false
		}
		n = m.loadNode(n.children[i])
	}
}

// Insert stores value under key and returns the value it replaced, if any.
// The only error is ErrRecordTooLarge (or another encoding failure), in which
// case the map is unchanged.
func (m *BTreeMap[V]) Insert(key uint64, value V) (V, bool, error) {
	var zero V
	data, err := m.codec.Encode(value)
	if err != nil {
		return zero, false, err
	}
	if uint32(len(data)) > m.maxValueSize {
		return zero, false, fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, len(data), m.maxValueSize)
	}

	if m.root == nullAddr {
		root := m.newNode(true)
		root.insertEntry(0, key, data)
		m.saveNode(root)
		m.root = root.addr
		m.length = 1
		m.saveHeader()
		return zero, false, nil
	}

	root := m.loadNode(m.root)
	if root.full() {
		newRoot := m.newNode(false)
		newRoot.children = append(newRoot.children, root.addr)
		m.splitChild(newRoot, 0, root)
		m.root = newRoot.addr
		m.saveHeader()
		root = newRoot
	}

	old, existed := m.insertNonFull(root, key, data)
	if existed {
		return m.decode(key, old), true, nil
	}
	m.length++
	m.saveHeader()
	return zero, false, nil
}

// splitChild splits the full child at parent.children[i], moving its median
// entry up into parent.
func (m *BTreeMap[V]) splitChild(parent *node, i int, child *node) {
	sibling := m.newNode(child.leaf)
	sibling.keys = append(sibling.keys, child.keys[minDegree:]...)
	sibling.values = append(sibling.values, child.values[minDegree:]...)
	if !child.leaf {
		sibling.children = append(make([]uint64, 0, maxChildren), child.children[minDegree:]...)
		child.children = child.children[:minDegree]
	}

	medianKey, medianValue := child.keys[minDegree-1], child.values[minDegree-1]
	child.keys = child.keys[:minDegree-1]
	child.values = child.values[:minDegree-1]

	parent.insertEntry(i, medianKey, medianValue)
	parent.insertChild(i+1, sibling.addr)

	m.saveNode(child)
	m.saveNode(sibling)
	m.saveNode(parent)
}

func (m *BTreeMap[V]) insertNonFull(n *node, key uint64, data []byte) ([]byte, bool) {
	for {
		i, found := n.search(key)
		if found {
			old := n.values[i]
			n.values[i] = data
			m.saveNode(n)
			return old, true
		}
		if n.leaf {
			n.insertEntry(i, key, data)
			m.saveNode(n)
			return nil, false
		}

		child := m.loadNode(n.children[i])
		if child.full() {
			m.splitChild(n, i, child)
			switch {
			case key == n.keys[i]:
				old := n.values[i]
				n.values[i] = data
				m.saveNode(n)
				return old, true
			case key > n.keys[i]:
				child = m.loadNode(n.children[i+1])
			}
		}
		n = child
	}
}

// Remove deletes key and returns the value it held.
func (m *BTreeMap[V]) Remove(key uint64) (V, bool) {
	var zero V
	if m.root == nullAddr {
		return zero, false
	}

	root := m.loadNode(m.root)
	old, ok := m.remove(root, key)

	// A merge under the root can empty it even when key turns out missing.
	dirty := ok
	if len(root.keys) == 0 {
		if root.leaf {
			m.root = nullAddr
		} else {
			m.root = root.children[0]
		}
		m.alloc.free(root.addr)
		dirty = true
	}
	if ok {
		m.length--
	}
	if dirty {
		m.saveHeader()
	}
	if !ok {
		return zero, false
	}
	return m.decode(key, old), true
}

// remove deletes key from the subtree rooted at n. Every node it descends
// into holds at least minDegree entries, so removal never underflows.
func (m *BTreeMap[V]) remove(n *node, key uint64) ([]byte, bool) {
	i, found := n.search(key)

	if n.leaf {
		if !found {
			return nil, false
		}
		_, old := n.removeEntry(i)
		m.saveNode(n)
		return old, true
	}

	if found {
		old := n.values[i]
		left := m.loadNode(n.children[i])
		if len(left.keys) > minEntries {
			pk, pv := m.lastEntry(left)
			n.keys[i], n.values[i] = pk, pv
			m.saveNode(n)
			m.remove(left, pk)
			return old, true
		}
		right := m.loadNode(n.children[i+1])
		if len(right.keys) > minEntries {
			sk, sv := m.firstEntry(right)
			n.keys[i], n.values[i] = sk, sv
			m.saveNode(n)
			m.remove(right, sk)
			return old, true
		}
		m.merge(n, i, left, right)
		m.remove(left, key)
		return old, true
	}

	child := m.loadNode(n.children[i])
	if len(child.keys) == minEntries {
		child = m.fill(n, i, child)
	}
	return m.remove(child, key)
}

// fill makes sure n.children[i] has more than minEntries entries by borrowing
// from a sibling or merging with one. It returns the node that now covers the
// key range the child covered before.
func (m *BTreeMap[V]) fill(n *node, i int, child *node) *node {
	var left, right *node
	if i > 0 {
		left = m.loadNode(n.children[i-1])
		if len(left.keys) > minEntries {
			k, v := left.removeEntry(len(left.keys) - 1)
			child.insertEntry(0, n.keys[i-1], n.values[i-1])
			n.keys[i-1], n.values[i-1] = k, v
			if !child.leaf {
				child.insertChild(0, left.removeChild(len(left.children)-1))
			}
			m.saveNode(left)
			m.saveNode(child)
			m.saveNode(n)
			return child
		}
	}
	if i < len(n.children)-1 {
		right = m.loadNode(n.children[i+1])
		if len(right.keys) > minEntries {
			k, v := right.removeEntry(0)
			child.insertEntry(len(child.keys), n.keys[i], n.values[i])
			n.keys[i], n.values[i] = k, v
			if !child.leaf {
				child.insertChild(len(child.children), right.removeChild(0))
			}
			m.saveNode(right)
			m.saveNode(child)
			m.saveNode(n)
			return child
		}
	}

	if right != nil {
		m.merge(n, i, child, right)
		return child
	}
	m.merge(n, i-1, left, child)
	return left
}

// merge folds n.keys[i] and right into left, where left and right are
// n.children[i] and n.children[i+1]. right's chunk is released.
func (m *BTreeMap[V]) merge(n *node, i int, left, right *node) {
	k, v := n.removeEntry(i)
	n.removeChild(i + 1)

	left.insertEntry(len(left.keys), k, v)
	left.keys = append(left.keys, right.keys...)
	left.values = append(left.values, right.values...)
	if !left.leaf {
		left.children = append(left.children, right.children...)
	}

	m.saveNode(left)
	m.saveNode(n)
	m.alloc.free(right.addr)
}

func (m *BTreeMap[V]) lastEntry(n *node) (uint64, []byte) {
	for !n.leaf {
		n = m.loadNode(n.children[len(n.children)-1])
	}
	return n.keys[len(n.keys)-1], n.values[len(n.values)-1]
}

func (m *BTreeMap[V]) firstEntry(n *node) (uint64, []byte) {
	for !n.leaf {
		n = m.loadNode(n.children[0])
	}
	return n.keys[0], n.values[0]
}

// All yields every entry in ascending key order. Each call starts a fresh
// scan over the map as it is at that moment.
func (m *BTreeMap[V]) All() iter.Seq2[uint64, V] {
	return func(yield func(uint64, V) bool) {
		if m.root == nullAddr {
			return
		}
		m.walk(m.root, yield)
	}
}

func (m *BTreeMap[V]) walk(addr uint64, yield func(uint64, V) bool) bool {
	n := m.loadNode(addr)
	for i, key := range n.keys {
		if !n.leaf && !m.walk(n.children[i], yield) {
			return false
		}
		if !yield(key, m.decode(key, n.values[i])) {
			return false
		}
	}
	if !n.leaf {
		return m.walk(n.children[len(n.keys)], yield)
	}
	return true
}
