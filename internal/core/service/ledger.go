package service

import (
	"github.com/rl1809/stock-manager/internal/core/domain"
)

// Ledger is the call surface over Storage: list, get, add, update and delete
// for items and stock, and everything but get-by-id for transactions.
type Ledger struct {
	items        *registry[domain.Item, domain.ItemPayload]
	stock        *registry[domain.Stock, domain.StockPayload]
	transactions *registry[domain.Transaction, domain.TransactionPayload]
	changeQueue  chan domain.Change
	closed       bool // guarded by all three registry mutexes
}

// NewLedger binds the entity services to st. With queueSize > 0 every
// committed mutation is also published on Changes.
func NewLedger(st *Storage, queueSize int) *Ledger {
	l := &Ledger{}
	var publish func(domain.Change)
	if queueSize > 0 {
		l.changeQueue = make(chan domain.Change, queueSize)
		// Runs under the publishing registry's mutex, which Close also holds.
		publish = func(c domain.Change) {
			if !l.closed {
				l.changeQueue <- c
			}
		}
	}

	l.items = &registry[domain.Item, domain.ItemPayload]{
		kind:    domain.KindItem,
		label:   "Item",
		empty:   "No Items found",
		ids:     st.ItemIDs,
		records: st.Items,
		build: func(id uint64, p domain.ItemPayload) domain.Item {
			return domain.Item{ID: id, Name: p.Name, Description: p.Description, Price: p.Price}
		},
		apply: func(it *domain.Item, p domain.ItemPayload) {
			it.Name = p.Name
			it.Description = p.Description
			it.Price = p.Price
		},
		publish: publish,
	}
	l.stock = &registry[domain.Stock, domain.StockPayload]{
		kind:    domain.KindStock,
		label:   "Stock",
		empty:   "No Stock found",
		ids:     st.StockIDs,
		records: st.Stock,
		build: func(id uint64, p domain.StockPayload) domain.Stock {
			return domain.Stock{ID: id, ItemID: p.ItemID, Quantity: p.Quantity}
		},
		apply: func(s *domain.Stock, p domain.StockPayload) {
			s.ItemID = p.ItemID
			s.Quantity = p.Quantity
		},
		publish: publish,
	}
	l.transactions = &registry[domain.Transaction, domain.TransactionPayload]{
		kind:    domain.KindTransaction,
		label:   "Transaction",
		empty:   "No Transactions found",
		ids:     st.TransactionIDs,
		records: st.Transactions,
		build: func(id uint64, p domain.TransactionPayload) domain.Transaction {
			return domain.Transaction{ID: id, StockID: p.StockID, TransactionType: p.TransactionType, Quantity: p.Quantity}
		},
		apply: func(tx *domain.Transaction, p domain.TransactionPayload) {
			tx.StockID = p.StockID
			tx.TransactionType = p.TransactionType
			tx.Quantity = p.Quantity
		},
		validate: domain.TransactionPayload.Validate,
		publish:  publish,
	}
	return l
}

func (l *Ledger) GetItems() ([]domain.Item, error) { return l.items.list() }

func (l *Ledger) GetItemByID(id uint64) (domain.Item, error) { return l.items.get(id) }

func (l *Ledger) AddItem(p domain.ItemPayload) (domain.Item, error) { return l.items.create(p) }

func (l *Ledger) UpdateItem(id uint64, p domain.ItemPayload) (domain.Item, error) {
	return l.items.update(id, p)
}

func (l *Ledger) DeleteItem(id uint64) error { return l.items.remove(id) }

func (l *Ledger) GetStock() ([]domain.Stock, error) { return l.stock.list() }

func (l *Ledger) GetStockByID(id uint64) (domain.Stock, error) { return l.stock.get(id) }

// AddStock does not check that p.ItemID names an existing item.
func (l *Ledger) AddStock(p domain.StockPayload) (domain.Stock, error) { return l.stock.create(p) }

func (l *Ledger) UpdateStock(id uint64, p domain.StockPayload) (domain.Stock, error) {
	return l.stock.update(id, p)
}

func (l *Ledger) DeleteStock(id uint64) error { return l.stock.remove(id) }

func (l *Ledger) GetTransactions() ([]domain.Transaction, error) { return l.transactions.list() }

// AddTransaction does not check that p.StockID names existing stock. A
// payload outside the Inflow/Outflow enum fails with
// domain.ErrInvalidTransactionType.
func (l *Ledger) AddTransaction(p domain.TransactionPayload) (domain.Transaction, error) {
	return l.transactions.create(p)
}

func (l *Ledger) UpdateTransaction(id uint64, p domain.TransactionPayload) (domain.Transaction, error) {
	return l.transactions.update(id, p)
}

func (l *Ledger) DeleteTransaction(id uint64) error { return l.transactions.remove(id) }

// Changes returns the change feed, or nil when the ledger publishes none.
func (l *Ledger) Changes() <-chan domain.Change {
	return l.changeQueue
}

// Close ends the change feed once in-flight mutations have published. Later
// mutations still commit but are no longer published. A mutation blocked on
// a full feed holds up Close until the feed is drained.
func (l *Ledger) Close() {
	l.items.mu.Lock()
	defer l.items.mu.Unlock()
	l.stock.mu.Lock()
	defer l.stock.mu.Unlock()
	l.transactions.mu.Lock()
	defer l.transactions.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	if l.changeQueue != nil {
		close(l.changeQueue)
	}
}
