package stable

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID   uint64 `cbor:"id"`
	Name string `cbor:"name"`
}

func newTestMap(t *testing.T) (*BTreeMap[testRecord], *VectorMemory) {
	t.Helper()
	mem := NewVectorMemory()
	codec, err := NewCBORCodec[testRecord](64)
	require.NoError(t, err)
	m, err := InitBTreeMap[testRecord](mem, codec)
	require.NoError(t, err)
	return m, mem
}

func collect[V any](m *BTreeMap[V]) []uint64 {
	var keys []uint64
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

func TestBTreeMap(t *testing.T) {
	t.Run("empty map", func(t *testing.T) {
		m, _ := newTestMap(t)

		_, ok := m.Get(0)
		assert.False(t, ok)
		_, ok = m.Remove(0)
		assert.False(t, ok)
		assert.Empty(t, collect(m))
		assert.Equal(t, uint64(0), m.Len())
	})

	t.Run("insert returns previous value", func(t *testing.T) {
		m, _ := newTestMap(t)

		_, existed, err := m.Insert(1, testRecord{ID: 1, Name: "first"})
		require.NoError(t, err)
		assert.False(t, existed)

		prev, existed, err := m.Insert(1, testRecord{ID: 1, Name: "second"})
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, "first", prev.Name)

		got, ok := m.Get(1)
		require.True(t, ok)
		assert.Equal(t, "second", got.Name)
		assert.Equal(t, uint64(1), m.Len())
	})

	t.Run("remove returns value", func(t *testing.T) {
		m, _ := newTestMap(t)
		_, _, err := m.Insert(9, testRecord{ID: 9, Name: "nine"})
		require.NoError(t, err)

		old, ok := m.Remove(9)
		require.True(t, ok)
		assert.Equal(t, "nine", old.Name)
		_, ok = m.Get(9)
		assert.False(t, ok)
		assert.Equal(t, uint64(0), m.Len())
	})

	t.Run("iterates in ascending order", func(t *testing.T) {
		m, _ := newTestMap(t)
		keys := rand.New(rand.NewPCG(1, 2)).Perm(200)
		for _, k := range keys {
			_, _, err := m.Insert(uint64(k), testRecord{ID: uint64(k)})
			require.NoError(t, err)
		}

		got := collect(m)
		require.Len(t, got, 200)
		assert.True(t, slices.IsSorted(got))

		// restartable
		assert.Equal(t, got, collect(m))
	})

	t.Run("early break stops iteration", func(t *testing.T) {
		m, _ := newTestMap(t)
		for k := uint64(0); k < 50; k++ {
			_, _, err := m.Insert(k, testRecord{ID: k})
			require.NoError(t, err)
		}

		var seen []uint64
		for k := range m.All() {
			if k == 3 {
				break
			}
			seen = append(seen, k)
		}
		assert.Equal(t, []uint64{0, 1, 2}, seen)
	})

	t.Run("oversize value is rejected", func(t *testing.T) {
		m, _ := newTestMap(t)

		_, _, err := m.Insert(1, testRecord{Name: strings.Repeat("x", 100)})
		assert.ErrorIs(t, err, ErrRecordTooLarge)
		_, found := m.Get(1)
		assert.False(t, found)
		assert.Equal(t, uint64(0), m.Len())
	})

	t.Run("matches a reference map under random operations", func(t *testing.T) {
		m, _ := newTestMap(t)
		ref := map[uint64]testRecord{}
		rng := rand.New(rand.NewPCG(42, 7))

		for op := 0; op < 5000; op++ {
			key := uint64(rng.IntN(400))
			switch rng.IntN(3) {
			case 0, 1:
				rec := testRecord{ID: key, Name: fmt.Sprintf("v%d", op)}
				prev, existed, err := m.Insert(key, rec)
				require.NoError(t, err)
				want, had := ref[key]
				require.Equal(t, had, existed, "insert %d", key)
				if had {
					require.Equal(t, want, prev)
				}
				ref[key] = rec
			case 2:
				old, ok := m.Remove(key)
				want, had := ref[key]
				require.Equal(t, had, ok, "remove %d", key)
				if had {
					require.Equal(t, want, old)
				}
				delete(ref, key)
			}
		}

		require.Equal(t, uint64(len(ref)), m.Len())
		wantKeys := make([]uint64, 0, len(ref))
		for k := range ref {
			wantKeys = append(wantKeys, k)
		}
		slices.Sort(wantKeys)
		assert.Equal(t, wantKeys, collect(m))
		for k, want := range ref {
			got, ok := m.Get(k)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	})

	t.Run("removing everything releases all nodes", func(t *testing.T) {
		m, _ := newTestMap(t)
		for k := uint64(0); k < 300; k++ {
			_, _, err := m.Insert(k, testRecord{ID: k})
			require.NoError(t, err)
		}
		carved := m.alloc.carved

		for k := uint64(0); k < 300; k += 2 {
			_, ok := m.Remove(k)
			require.True(t, ok)
		}
		for k := uint64(299); k < 300; k -= 2 {
			_, ok := m.Remove(k)
			require.True(t, ok)
		}

		assert.Equal(t, uint64(0), m.Len())
		assert.Equal(t, uint64(0), m.alloc.allocated)
		assert.Equal(t, nullAddr, m.root)

		for k := uint64(0); k < 300; k++ {
			_, _, err := m.Insert(k, testRecord{ID: k})
			require.NoError(t, err)
		}
		assert.Equal(t, carved, m.alloc.carved)
	})

	t.Run("reopen restores entries", func(t *testing.T) {
		m, mem := newTestMap(t)
		for k := uint64(0); k < 100; k++ {
			_, _, err := m.Insert(k, testRecord{ID: k, Name: fmt.Sprint(k)})
			require.NoError(t, err)
		}
		_, ok := m.Remove(50)
		require.True(t, ok)

		codec, err := NewCBORCodec[testRecord](64)
		require.NoError(t, err)
		reopened, err := InitBTreeMap[testRecord](mem, codec)
		require.NoError(t, err)

		assert.Equal(t, uint64(99), reopened.Len())
		assert.Equal(t, collect(m), collect(reopened))
		got, ok := reopened.Get(99)
		require.True(t, ok)
		assert.Equal(t, "99", got.Name)
	})

	t.Run("reopen with another bound fails", func(t *testing.T) {
		_, mem := newTestMap(t)
		codec, err := NewCBORCodec[testRecord](128)
		require.NoError(t, err)

		_, err = InitBTreeMap[testRecord](mem, codec)
		assert.ErrorIs(t, err, ErrUnsupportedLayout)
	})

	t.Run("undecodable value is fatal", func(t *testing.T) {
		m, mem := newTestMap(t)
		_, _, err := m.Insert(1, testRecord{ID: 1, Name: "one"})
		require.NoError(t, err)

		codec, err := NewCBORCodec[uint64](64)
		require.NoError(t, err)
		wrong, err := InitBTreeMap[uint64](mem, codec)
		require.NoError(t, err)

		assert.Panics(t, func() { wrong.Get(1) })
	})
}
