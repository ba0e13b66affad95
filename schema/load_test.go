package schema

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/udpinsert/log2"
)

const sampleJSON = `{
     "identifier": [1, 1, 1],
     "secret": [12, 23, 23, 11, 244, 23, 222, 123],
     "database": "data",
     "fields": [
         ["inverter0.PVVoltage1", ["min", "uint16"], ["max", "uint16"], ["last","uint16"]],
         ["inverter0.LatestEvent", ["value","uint16"]]
     ]
}`

const sampleTOML = `
identifier = [2, 2, 2]
secret = "topsecret"
database = "data"

[[record]]
name = "inverter0.PVVoltage1"
fields = [["min", "uint16"], ["max", "UINT16"], ["last", "uint32"]]

[[record]]
name = "inverter0.LatestEvent"
fields = [["value", "uint8"]]
`

const sampleHCL = `
identifier = [3, 3, 3]
secret_bytes = [12, 23, 23, 11]
database = "data"
record "inverter0.PVVoltage1" { fields = ["min:uint16", "max:uint16", "last:uint64"] }
record "inverter0.LatestEvent" { fields = ["value:uint16"] }
`

func TestParseDescription(t *testing.T) {
	t.Parallel()
	cases := []struct {
		format string
		input  string
		id     Identifier
		secret []byte
		size   int
	}{
		{FormatJSON, sampleJSON, Identifier{1, 1, 1}, []byte{12, 23, 23, 11, 244, 23, 222, 123}, 8},
		{FormatTOML, sampleTOML, Identifier{2, 2, 2}, []byte("topsecret"), 9},
		{FormatHCL, sampleHCL, Identifier{3, 3, 3}, []byte{12, 23, 23, 11}, 14},
	}
	for _, c := range cases {
		c := c
		t.Run(c.format, func(t *testing.T) {
			d, err := ParseDescription(c.format, []byte(c.input), "inline."+c.format)
			require.NoError(t, err)
			s, err := d.Build()
			require.NoError(t, err)
			assert.Equal(t, c.id, s.Identifier())
			assert.Equal(t, c.secret, s.Secret())
			assert.Equal(t, "data", s.Database())
			assert.Equal(t, c.size, s.Size())
			rs := s.Records()
			require.Equal(t, 2, len(rs))
			assert.Equal(t, "inverter0.PVVoltage1", rs[0].Name)
			assert.Equal(t, "min", rs[0].Fields[0].Name)
			assert.Equal(t, "inverter0.LatestEvent", rs[1].Name)
		})
	}
}

func TestParseDescriptionError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		format string
		input  string
		expect string
	}{
		{"json-syntax", FormatJSON, `{`, "json"},
		{"json-record-pair", FormatJSON, `{"fields": [["r", ["a"]]]}`, "record=r field=[a] expected [name, type]"},
		{"json-byte-range", FormatJSON, `{"identifier": [1, 2, 300]}`, "byte[2]=300 out of range"},
		{"toml-field-pair", FormatTOML, "[[record]]\nname = \"r\"\nfields = [[\"a\"]]\n", "record=r field=[a] expected [name, type]"},
		{"hcl-field-spec", FormatHCL, `record "r" { fields = ["a"] }`, `field="a" expected name:type`},
		{"hcl-secret-both", FormatHCL, "secret = \"x\"\nsecret_bytes = [1]\n", "mutually exclusive"},
		{"unknown-format", "yaml", ``, "not supported"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseDescription(c.format, []byte(c.input), "test")
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expect)
		})
	}
}

func TestParseDescriptionHCLRoot(t *testing.T) {
	t.Parallel()
	d, err := ParseDescription(FormatHCL, []byte("identifier = [1, 1, 1]\nsecret = \"s\"\ndatabase = \"db\"\nrecord \"r\" { fields = [\"v:uint8\"] }\n"), "x.hcl")
	require.NoError(t, err)
	assert.Equal(t, Bytes{1, 1, 1}, d.Identifier)
	assert.Equal(t, "db", d.Database)
	require.Equal(t, 1, len(d.Fields))
	assert.Equal(t, RecordDescription{Name: "r", Fields: []FieldDescription{{"v", "uint8"}}}, d.Fields[0])
}

func TestRecordDescriptionJSON(t *testing.T) {
	t.Parallel()
	rd := RecordDescription{Name: "temp", Fields: []FieldDescription{{"c", "uint16"}, {"f", "uint8"}}}
	b, err := json.Marshal(rd)
	require.NoError(t, err)
	assert.Equal(t, `["temp",["c","uint16"],["f","uint8"]]`, string(b))
	var back RecordDescription
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rd, back)
}

func TestLoadGlob(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("a.json", sampleJSON)
	write("b.toml", sampleTOML)
	write("c.hcl", sampleHCL)
	write("d-dup.json", sampleJSON)
	write("e-broken.json", `{"identifier": [5, 5, 5], "secret": "x", "database": "data", "fields": [["r", ["v", "int"]]]}`)

	r := NewRegistry()
	log := log2.NewTest(t, log2.LDebug)
	err := LoadGlob(r, log, filepath.Join(dir, "*.json"), filepath.Join(dir, "*.toml"), filepath.Join(dir, "*.hcl"))
	require.Error(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Contains(t, err.Error(), "d-dup.json")
	assert.Contains(t, err.Error(), "e-broken.json")

	_, err = r.Get(Identifier{5, 5, 5})
	assert.Equal(t, ErrUnknownSchema, errors.Cause(err))
}
