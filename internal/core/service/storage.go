package service

import (
	"fmt"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/stable"
	"github.com/rl1809/stock-manager/internal/port"
)

// Region tags. The binding is part of the persisted format: never renumber
// or reuse a tag without migrating the image.
const (
	ItemCounterRegion        stable.MemoryID = 0
	StockCounterRegion       stable.MemoryID = 1
	TransactionCounterRegion stable.MemoryID = 2
	ItemRegion               stable.MemoryID = 3
	StockRegion              stable.MemoryID = 4
	TransactionRegion        stable.MemoryID = 5
)

// MaxRecordSize bounds the encoding of a single record.
const MaxRecordSize = 1024

// Storage holds every structure derived from the linear memory. It is built
// once per process and shared by reference.
type Storage struct {
	Manager *stable.MemoryManager

	ItemIDs        *stable.Cell[uint64]
	StockIDs       *stable.Cell[uint64]
	TransactionIDs *stable.Cell[uint64]

	Items        *stable.BTreeMap[domain.Item]
	Stock        *stable.BTreeMap[domain.Stock]
	Transactions *stable.BTreeMap[domain.Transaction]
}

// OpenStorage formats mem on first use and otherwise restores the counters
// and maps persisted in it.
func OpenStorage(mem port.Memory, bucketSizePages uint16) (*Storage, error) {
	mm, err := stable.InitMemoryManager(mem, bucketSizePages)
	if err != nil {
		return nil, fmt.Errorf("init region allocator: %w", err)
	}

	s := &Storage{Manager: mm}
	if s.ItemIDs, err = openCounter(mm, ItemCounterRegion); err != nil {
		return nil, err
	}
	if s.StockIDs, err = openCounter(mm, StockCounterRegion); err != nil {
		return nil, err
	}
	if s.TransactionIDs, err = openCounter(mm, TransactionCounterRegion); err != nil {
		return nil, err
	}
	if s.Items, err = openMap[domain.Item](mm, ItemRegion); err != nil {
		return nil, err
	}
	if s.Stock, err = openMap[domain.Stock](mm, StockRegion); err != nil {
		return nil, err
	}
	if s.Transactions, err = openMap[domain.Transaction](mm, TransactionRegion); err != nil {
		return nil, err
	}
	return s, nil
}

func openCounter(mm *stable.MemoryManager, id stable.MemoryID) (*stable.Cell[uint64], error) {
	c, err := stable.InitCell[uint64](mm.Get(id), stable.Uint64Codec{}, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot create a counter in region %d: %w", id, err)
	}
	return c, nil
}

func openMap[V any](mm *stable.MemoryManager, id stable.MemoryID) (*stable.BTreeMap[V], error) {
	codec, err := stable.NewCBORCodec[V](MaxRecordSize)
	if err != nil {
		return nil, err
	}
	m, err := stable.InitBTreeMap[V](mm.Get(id), codec)
	if err != nil {
		return nil, fmt.Errorf("open map in region %d: %w", id, err)
	}
	return m, nil
}
