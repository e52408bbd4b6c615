package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/stable"
)

func TestOpenStorage_BindsRegions(t *testing.T) {
	mem := stable.NewVectorMemory()
	st, err := OpenStorage(mem, 1)
	require.NoError(t, err)

	for id := ItemCounterRegion; id <= TransactionRegion; id++ {
		assert.NotZero(t, st.Manager.Get(id).Size(), "region %d", id)
	}
	assert.Zero(t, st.Manager.Get(TransactionRegion+1).Size())

	require.NoError(t, st.StockIDs.Set(12))
	_, _, err = st.Transactions.Insert(3, domain.Transaction{ID: 3, TransactionType: domain.TransactionInflow})
	require.NoError(t, err)

	reopened, err := OpenStorage(mem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), reopened.StockIDs.Get())
	assert.Equal(t, uint64(0), reopened.ItemIDs.Get())
	_, ok := reopened.Transactions.Get(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), reopened.Items.Len())
}

func TestOpenStorage_RejectsForeignImage(t *testing.T) {
	mem := stable.NewVectorMemory()
	_, err := mem.Grow(1)
	require.NoError(t, err)
	mem.Write(0, []byte("not a ledger"))

	_, err = OpenStorage(mem, 1)
	assert.ErrorIs(t, err, stable.ErrNotManaged)
}

func TestOpenStorage_CorruptTransactionTypeIsFatal(t *testing.T) {
	mem := stable.NewVectorMemory()
	st, err := OpenStorage(mem, 1)
	require.NoError(t, err)

	_, _, err = st.Transactions.Insert(0, domain.Transaction{TransactionType: "Sideways"})
	assert.ErrorIs(t, err, stable.ErrUnreadableRecord)

	// a map with a looser record type can still write what the ledger rejects
	type looseTransaction struct {
		ID              uint64 `cbor:"id"`
		StockID         uint64 `cbor:"stock_id"`
		TransactionType string `cbor:"transaction_type"`
		Quantity        uint32 `cbor:"quantity"`
	}
	codec, err := stable.NewCBORCodec[looseTransaction](MaxRecordSize)
	require.NoError(t, err)
	loose, err := stable.InitBTreeMap[looseTransaction](st.Manager.Get(TransactionRegion), codec)
	require.NoError(t, err)
	_, _, err = loose.Insert(0, looseTransaction{TransactionType: "Sideways"})
	require.NoError(t, err)

	reopened, err := OpenStorage(mem, 1)
	require.NoError(t, err)
	assert.Panics(t, func() { reopened.Transactions.Get(0) })
}
