package stable

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORCodecRoundTrip(t *testing.T) {
	type priced struct {
		ID    uint64  `cbor:"id"`
		Name  string  `cbor:"name"`
		Price float64 `cbor:"price"`
	}
	codec, err := NewCBORCodec[priced](1024)
	require.NoError(t, err)

	for _, want := range []priced{
		{},
		{ID: math.MaxUint64, Name: "Widget", Price: 9.99},
		{ID: 3, Name: "ünïcode", Price: -0.1},
		{ID: 4, Price: math.SmallestNonzeroFloat64},
		{ID: 5, Price: math.Inf(1)},
	} {
		data, err := codec.Encode(want)
		require.NoError(t, err)
		got, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCBORCodecIsDeterministic(t *testing.T) {
	codec, err := NewCBORCodec[map[string]int](64)
	require.NoError(t, err)

	a, err := codec.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := codec.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCBORCodecRejectsUnknownFields(t *testing.T) {
	type wide struct {
		A int `cbor:"a"`
		B int `cbor:"b"`
	}
	type narrow struct {
		A int `cbor:"a"`
	}
	wideCodec, err := NewCBORCodec[wide](64)
	require.NoError(t, err)
	narrowCodec, err := NewCBORCodec[narrow](64)
	require.NoError(t, err)

	data, err := wideCodec.Encode(wide{A: 1, B: 2})
	require.NoError(t, err)
	_, err = narrowCodec.Decode(data)
	assert.Error(t, err)

	_, err = narrowCodec.Decode(append(data[:len(data):len(data)], 0x00))
	assert.Error(t, err)
}

func TestUint64Codec(t *testing.T) {
	data, err := Uint64Codec{}.Encode(1 << 40)
	require.NoError(t, err)
	assert.Len(t, data, 8)

	v, err := Uint64Codec{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), v)

	_, err = Uint64Codec{}.Decode(data[:4])
	assert.Error(t, err)
}

func TestCBORCodecRefusesUndecodableValues(t *testing.T) {
	type named struct {
		Name string `cbor:"name"`
	}
	codec, err := NewCBORCodec[named](64)
	require.NoError(t, err)

	_, err = codec.Encode(named{Name: "bad\xff"})
	assert.ErrorIs(t, err, ErrUnreadableRecord)

	data, err := codec.Encode(named{Name: ""})
	require.NoError(t, err)
	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, named{}, got)
}
