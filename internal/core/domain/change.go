package domain

type Kind string

const (
	KindItem        Kind = "item"
	KindStock       Kind = "stock"
	KindTransaction Kind = "transaction"
)

type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// Change describes one committed ledger mutation. Record holds the stored
// value (Item, Stock or Transaction) for upserts and is nil for deletes.
type Change struct {
	Kind   Kind
	Op     ChangeOp
	ID     uint64
	Record any
}
