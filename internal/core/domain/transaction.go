package domain

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type TransactionType string

var ErrInvalidTransactionType = errors.New("invalid transaction type")

const (
	TransactionInflow  TransactionType = "Inflow"
	TransactionOutflow TransactionType = "Outflow"
)

func (t TransactionType) Valid() bool {
	return t == TransactionInflow || t == TransactionOutflow
}

func (t *TransactionType) UnmarshalText(text []byte) error {
	v := TransactionType(text)
	if !v.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidTransactionType, text)
	}
	*t = v
	return nil
}

// UnmarshalCBOR rejects stored values outside the enum.
func (t *TransactionType) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

// Transaction records a stock movement. StockID is not checked against
// existing stock.
type Transaction struct {
	ID              uint64          `json:"id" cbor:"id"`
	StockID         uint64          `json:"stock_id" cbor:"stock_id"`
	TransactionType TransactionType `json:"transaction_type" cbor:"transaction_type"`
	Quantity        uint32          `json:"quantity" cbor:"quantity"`
}

type TransactionPayload struct {
	StockID         uint64          `json:"stock_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        uint32          `json:"quantity"`
}

// Validate reports a payload whose type is missing or outside the enum.
func (p TransactionPayload) Validate() error {
	if !p.TransactionType.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidTransactionType, p.TransactionType)
	}
	return nil
}
