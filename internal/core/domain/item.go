package domain

type Item struct {
	ID          uint64  `json:"id" cbor:"id"`
	Name        string  `json:"name" cbor:"name"`
	Description string  `json:"description" cbor:"description"`
	Price       float64 `json:"price" cbor:"price"`
}

type ItemPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}
