package stable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrRecordTooLarge is returned when an encoded value exceeds its codec bound.
	ErrRecordTooLarge = errors.New("record exceeds maximum encoded size")
	// ErrUnreadableRecord is returned for a value whose encoding the codec
	// would refuse to decode, such as a string that is not valid UTF-8.
	ErrUnreadableRecord = errors.New("record cannot be decoded once stored")
)

// Codec turns values into bounded byte strings and back. Decode must accept
// every output of Encode and reject anything else.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	MaxSize() uint32
}

// Uint64Codec is a fixed 8-byte little endian encoding.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, v), nil
}

func (Uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64: expected 8 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (Uint64Codec) MaxSize() uint32 { return 8 }

// CBORCodec encodes records as self-describing CBOR maps using the core
// deterministic rules, so equal values always produce equal bytes. Decoding
// rejects unknown fields, duplicate keys and trailing data. Encode only
// returns bytes that Decode accepts.
type CBORCodec[T any] struct {
	enc     cbor.EncMode
	dec     cbor.DecMode
	maxSize uint32
}

func NewCBORCodec[T any](maxSize uint32) (*CBORCodec[T], error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   4,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec[T]{enc: enc, dec: dec, maxSize: maxSize}, nil
}

func (c *CBORCodec[T]) Encode(v T) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, len(data), c.maxSize)
	}
	if _, err := c.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableRecord, err)
	}
	return data, nil
}

func (c *CBORCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

func (c *CBORCodec[T]) MaxSize() uint32 { return c.maxSize }
