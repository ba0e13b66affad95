// Package schema describes fixed width telemetry payloads.
// Schema maps 3 byte identifier to secret, sink database and ordered records of unsigned integer fields.
// All multi-byte values are big-endian.
package schema

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

const IdentifierSize = 3

var (
	ErrConfig         = fmt.Errorf("schema config error")
	ErrSchemaMismatch = fmt.Errorf("data does not match schema")
	ErrSizeMismatch   = fmt.Errorf("payload size mismatch")
	ErrUnknownSchema  = fmt.Errorf("unknown schema identifier")
)

type Identifier [IdentifierSize]byte

func IdentifierFromBytes(b []byte) (Identifier, error) {
	var id Identifier
	if len(b) != IdentifierSize {
		return id, errors.Annotatef(ErrConfig, "identifier length=%d must be %d", len(b), IdentifierSize)
	}
	copy(id[:], b)
	return id, nil
}

func (id Identifier) String() string { return hex.EncodeToString(id[:]) }

type Type uint8

const (
	TypeInvalid Type = iota
	Uint8
	Uint16
	Uint32
	Uint64
)

// ParseType accepts case insensitive "uint8", "uint16", "uint32", "uint64".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint8":
		return Uint8, nil
	case "uint16":
		return Uint16, nil
	case "uint32":
		return Uint32, nil
	case "uint64":
		return Uint64, nil
	}
	return TypeInvalid, errors.Annotatef(ErrConfig, "datatype=%q not supported", s)
}

// Size in bytes.
func (t Type) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Uint32:
		return 4
	case Uint64:
		return 8
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	}
	return fmt.Sprintf("invalid(%d)", uint8(t))
}

type Field struct {
	Name string
	Type Type
}

type Record struct {
	Name   string
	Fields []Field
}

func (r *Record) size() int {
	n := 0
	for _, f := range r.Fields {
		n += f.Type.Size()
	}
	return n
}

// Schema is immutable after New.
type Schema struct {
	id       Identifier
	secret   []byte
	database string
	records  []Record
	size     int
}

func New(id Identifier, secret []byte, database string, records []Record) (*Schema, error) {
	if len(secret) == 0 {
		return nil, errors.Annotatef(ErrConfig, "identifier=%s missing secret", id)
	}
	if database == "" {
		return nil, errors.Annotatef(ErrConfig, "identifier=%s missing database", id)
	}
	s := &Schema{
		id:       id,
		secret:   append([]byte(nil), secret...),
		database: database,
		records:  make([]Record, 0, len(records)),
	}
	seenRecord := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Name == "" {
			return nil, errors.Annotatef(ErrConfig, "identifier=%s record name empty", id)
		}
		if _, ok := seenRecord[r.Name]; ok {
			return nil, errors.Annotatef(ErrConfig, "identifier=%s record=%s duplicate", id, r.Name)
		}
		seenRecord[r.Name] = struct{}{}
		seenField := make(map[string]struct{}, len(r.Fields))
		for _, f := range r.Fields {
			if f.Name == "" {
				return nil, errors.Annotatef(ErrConfig, "identifier=%s record=%s field name empty", id, r.Name)
			}
			if _, ok := seenField[f.Name]; ok {
				return nil, errors.Annotatef(ErrConfig, "identifier=%s record=%s field=%s duplicate", id, r.Name, f.Name)
			}
			seenField[f.Name] = struct{}{}
			if f.Type.Size() == 0 {
				return nil, errors.Annotatef(ErrConfig, "identifier=%s record=%s field=%s type=%s", id, r.Name, f.Name, f.Type)
			}
		}
		rc := Record{Name: r.Name, Fields: append([]Field(nil), r.Fields...)}
		s.size += rc.size()
		s.records = append(s.records, rc)
	}
	return s, nil
}

func (s *Schema) Identifier() Identifier { return s.id }
func (s *Schema) Database() string       { return s.database }

// Size of encoded payload in bytes.
func (s *Schema) Size() int { return s.size }

// Secret returns internal slice, do not modify.
func (s *Schema) Secret() []byte { return s.secret }

func (s *Schema) Records() []Record {
	rs := make([]Record, len(s.records))
	for i, r := range s.records {
		rs[i] = Record{Name: r.Name, Fields: append([]Field(nil), r.Fields...)}
	}
	return rs
}

func (s *Schema) String() string {
	return fmt.Sprintf("(identifier=%s database=%s records=%d size=%d)", s.id, s.database, len(s.records), s.size)
}
