package schema

import (
	"encoding/hex"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t testing.TB, records ...Record) *Schema {
	s, err := New(Identifier{1, 1, 1}, []byte("topsecret"), "data", records)
	require.NoError(t, err)
	return s
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		records []Record
		data    Data
		hex     string
	}{
		{"temp",
			[]Record{{"temp", []Field{{"c", Uint16}}}},
			Data{"temp": {"c": 235}},
			"00eb"},
		{"empty", nil, Data{}, ""},
		{"all-widths",
			[]Record{
				{"a", []Field{{"u8", Uint8}, {"u16", Uint16}}},
				{"b", []Field{{"u32", Uint32}, {"u64", Uint64}}},
			},
			Data{
				"a": {"u8": 0xfe, "u16": 0x1234},
				"b": {"u32": 0xdeadbeef, "u64": 0x0102030405060708},
			},
			"fe1234deadbeef0102030405060708"},
		{"record-order",
			[]Record{
				{"z", []Field{{"last", Uint8}, {"first", Uint8}}},
				{"a", []Field{{"x", Uint8}}},
			},
			Data{"a": {"x": 3}, "z": {"first": 2, "last": 1}},
			"010203"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			s := testSchema(t, c.records...)
			b, err := s.Encode(c.data)
			require.NoError(t, err)
			assert.Equal(t, c.hex, hex.EncodeToString(b))
			assert.Equal(t, s.Size(), len(b))

			decoded, err := s.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, c.data, decoded)
		})
	}
}

func TestEncodeTruncate(t *testing.T) {
	t.Parallel()
	s := testSchema(t,
		Record{"r", []Field{{"u8", Uint8}, {"u16", Uint16}, {"u32", Uint32}}},
	)
	b, err := s.Encode(Data{"r": {"u8": 0x1ff, "u16": 0x10001, "u32": 0x100000002}})
	require.NoError(t, err)
	data, err := s.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, Data{"r": {"u8": 0xff, "u16": 1, "u32": 2}}, data)
}

func TestEncodeMismatch(t *testing.T) {
	t.Parallel()
	s := testSchema(t,
		Record{"min", []Field{{"v", Uint16}}},
		Record{"max", []Field{{"v", Uint16}, {"at", Uint32}}},
	)
	cases := []struct {
		name   string
		data   Data
		expect string
	}{
		{"nil", nil, "records expected=2 actual=0"},
		{"missing-record", Data{"min": {"v": 1}}, "records expected=2 actual=1"},
		{"extra-record", Data{"min": {"v": 1}, "max": {"v": 1, "at": 2}, "avg": {"v": 1}}, "records expected=2 actual=3"},
		{"renamed-record", Data{"min": {"v": 1}, "mux": {"v": 1, "at": 2}}, "record=max missing"},
		{"missing-field", Data{"min": {"v": 1}, "max": {"v": 1}}, "record=max fields expected=2 actual=1"},
		{"extra-field", Data{"min": {"v": 1, "w": 2}, "max": {"v": 1, "at": 2}}, "record=min fields expected=1 actual=2"},
		{"renamed-field", Data{"min": {"v": 1}, "max": {"v": 1, "on": 2}}, "record=max field=at missing"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			b, err := s.Encode(c.data)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.Equal(t, ErrSchemaMismatch, errors.Cause(err))
			assert.Contains(t, err.Error(), c.expect)
		})
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	t.Parallel()
	s := testSchema(t, Record{"temp", []Field{{"c", Uint16}, {"f", Uint16}}})
	for _, n := range []int{0, 1, 3, 5, 64} {
		data, err := s.Decode(make([]byte, n))
		require.Error(t, err, "len=%d", n)
		assert.Nil(t, data)
		assert.Equal(t, ErrSizeMismatch, errors.Cause(err))
	}
}
