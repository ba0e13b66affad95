package schema

import (
	"encoding/json"
	"strings"

	"github.com/juju/errors"
)

// Description is schema document as written in config or format files.
type Description struct {
	Identifier Bytes               `json:"identifier"`
	Secret     Bytes               `json:"secret"`
	Database   string              `json:"database"`
	Fields     []RecordDescription `json:"fields"`

	// Source is file name or config block for error messages.
	Source string `json:"-"`
}

type RecordDescription struct {
	Name   string
	Fields []FieldDescription
}

type FieldDescription struct {
	Name string
	Type string
}

// Build validates description and creates immutable Schema.
// All errors have ErrConfig cause.
func (d *Description) Build() (*Schema, error) {
	switch {
	case d.Identifier == nil:
		return nil, d.annotate(errors.Annotate(ErrConfig, `missing required option "identifier"`))
	case d.Secret == nil:
		return nil, d.annotate(errors.Annotate(ErrConfig, `missing required option "secret"`))
	case d.Database == "":
		return nil, d.annotate(errors.Annotate(ErrConfig, `missing required option "database"`))
	case d.Fields == nil:
		return nil, d.annotate(errors.Annotate(ErrConfig, `missing required option "fields"`))
	}
	id, err := IdentifierFromBytes(d.Identifier)
	if err != nil {
		return nil, d.annotate(err)
	}
	records := make([]Record, 0, len(d.Fields))
	for _, rd := range d.Fields {
		r := Record{Name: rd.Name, Fields: make([]Field, 0, len(rd.Fields))}
		for _, fd := range rd.Fields {
			t, err := ParseType(fd.Type)
			if err != nil {
				return nil, d.annotate(errors.Annotatef(err, "record=%s field=%s", rd.Name, fd.Name))
			}
			r.Fields = append(r.Fields, Field{Name: fd.Name, Type: t})
		}
		records = append(records, r)
	}
	s, err := New(id, d.Secret, d.Database, records)
	return s, d.annotate(err)
}

func (d *Description) annotate(err error) error {
	if err == nil || d.Source == "" {
		return err
	}
	return errors.Annotatef(err, "source=%s", d.Source)
}

// ParseFieldSpec parses "name:type" shorthand used in HCL config.
func ParseFieldSpec(s string) (FieldDescription, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return FieldDescription{}, errors.Annotatef(ErrConfig, "field=%q expected name:type", s)
	}
	return FieldDescription{Name: strings.TrimSpace(parts[0]), Type: strings.TrimSpace(parts[1])}, nil
}

// UnmarshalJSON reads tuple ["record", ["field", "type"], ...]
func (rd *RecordDescription) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return errors.Annotate(err, "record expected [name, [field, type]...]")
	}
	if len(tuple) == 0 {
		return errors.Annotate(ErrConfig, "record empty tuple")
	}
	if err := json.Unmarshal(tuple[0], &rd.Name); err != nil {
		return errors.Annotate(err, "record name")
	}
	rd.Fields = make([]FieldDescription, 0, len(tuple)-1)
	for _, raw := range tuple[1:] {
		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil {
			return errors.Annotatef(err, "record=%s field expected [name, type]", rd.Name)
		}
		if len(pair) != 2 {
			return errors.Annotatef(ErrConfig, "record=%s field=%v expected [name, type]", rd.Name, pair)
		}
		rd.Fields = append(rd.Fields, FieldDescription{Name: pair[0], Type: pair[1]})
	}
	return nil
}

func (rd RecordDescription) MarshalJSON() ([]byte, error) {
	tuple := make([]interface{}, 0, len(rd.Fields)+1)
	tuple = append(tuple, rd.Name)
	for _, f := range rd.Fields {
		tuple = append(tuple, []string{f.Name, f.Type})
	}
	return json.Marshal(tuple)
}

// Bytes is written as array of 0..255 numbers or as plain string.
type Bytes []byte

func (bs *Bytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*bs = Bytes(s)
		return nil
	}
	var ns []int
	if err := json.Unmarshal(b, &ns); err != nil {
		return errors.Annotate(err, "expected string or array of bytes")
	}
	return bs.setInts(ns)
}

func (bs Bytes) MarshalJSON() ([]byte, error) {
	ns := make([]int, len(bs))
	for i, b := range bs {
		ns[i] = int(b)
	}
	return json.Marshal(ns)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (bs *Bytes) UnmarshalTOML(v interface{}) error {
	switch x := v.(type) {
	case string:
		*bs = Bytes(x)
		return nil
	case []interface{}:
		ns := make([]int, len(x))
		for i, e := range x {
			n, ok := e.(int64)
			if !ok {
				return errors.Annotatef(ErrConfig, "byte[%d]=%v not integer", i, e)
			}
			ns[i] = int(n)
		}
		return bs.setInts(ns)
	}
	return errors.Annotatef(ErrConfig, "expected string or array of bytes, found %T", v)
}

func (bs *Bytes) setInts(ns []int) error {
	b := make([]byte, len(ns))
	for i, n := range ns {
		if n < 0 || n > 0xff {
			return errors.Annotatef(ErrConfig, "byte[%d]=%d out of range", i, n)
		}
		b[i] = byte(n)
	}
	*bs = b
	return nil
}
