package domain

// Stock is a lot of an item. ItemID is not checked against existing items.
type Stock struct {
	ID       uint64 `json:"id" cbor:"id"`
	ItemID   uint64 `json:"item_id" cbor:"item_id"`
	Quantity uint32 `json:"quantity" cbor:"quantity"`
}

type StockPayload struct {
	ItemID   uint64 `json:"item_id"`
	Quantity uint32 `json:"quantity"`
}
