package stable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-manager/internal/port"
)

func TestCell(t *testing.T) {
	t.Run("init writes default", func(t *testing.T) {
		mem := NewVectorMemory()
		c, err := InitCell[uint64](mem, Uint64Codec{}, 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), c.Get())
		assert.Equal(t, uint64(1), mem.Size())
	})

	t.Run("set survives reopen", func(t *testing.T) {
		mem := NewVectorMemory()
		c, err := InitCell[uint64](mem, Uint64Codec{}, 0)
		require.NoError(t, err)
		for i := uint64(1); i <= 3; i++ {
			require.NoError(t, c.Set(i))
		}

		reopened, err := InitCell[uint64](mem, Uint64Codec{}, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), reopened.Get())
	})

	t.Run("failed set keeps previous value", func(t *testing.T) {
		mm, err := InitMemoryManager(NewBoundedVectorMemory(1), 1)
		require.NoError(t, err)

		_, err = InitCell[uint64](mm.Get(0), Uint64Codec{}, 0)
		assert.ErrorIs(t, err, port.ErrGrowFailed)
	})

	t.Run("rejects other structures", func(t *testing.T) {
		mem := NewVectorMemory()
		codec, err := NewCBORCodec[string](16)
		require.NoError(t, err)
		_, err = InitBTreeMap[string](mem, codec)
		require.NoError(t, err)

		_, err = InitCell[uint64](mem, Uint64Codec{}, 0)
		assert.ErrorIs(t, err, ErrUnsupportedLayout)
	})
}
