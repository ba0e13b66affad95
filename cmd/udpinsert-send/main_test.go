package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/udpinsert/schema"
)

func TestFakeData(t *testing.T) {
	t.Parallel()
	s, err := schema.New(schema.Identifier{1, 1, 1}, []byte("s"), "d", []schema.Record{
		{Name: "temp", Fields: []schema.Field{{Name: "c", Type: schema.Uint16}}},
		{Name: "wind", Fields: []schema.Field{{Name: "min", Type: schema.Uint8}, {Name: "max", Type: schema.Uint8}}},
	})
	require.NoError(t, err)
	data := FakeData(s)
	// t+e+m+p+c = 116+101+109+112+99 = 537
	assert.Equal(t, uint64(537%0xff), data["temp"]["c"])
	require.Equal(t, 2, len(data["wind"]))

	_, err = s.Encode(data)
	require.NoError(t, err)
}
