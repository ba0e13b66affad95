package schema

import (
	"encoding/binary"

	"github.com/juju/errors"
)

// Values of one record, field name -> value.
type Values map[string]uint64

// Data is record name -> values, same shape for Encode input and Decode output.
type Data map[string]Values

// Encode packs data into payload of exactly Size() bytes.
// Key sets of data and each record must match schema exactly.
// Values wider than field type are truncated to its low bits,
// e.g. 0x10001 encoded as uint16 decodes to 1.
func (s *Schema) Encode(data Data) ([]byte, error) {
	if len(data) != len(s.records) {
		return nil, errors.Annotatef(ErrSchemaMismatch, "identifier=%s records expected=%d actual=%d", s.id, len(s.records), len(data))
	}
	b := make([]byte, 0, s.size)
	for _, r := range s.records {
		values, ok := data[r.Name]
		if !ok {
			return nil, errors.Annotatef(ErrSchemaMismatch, "identifier=%s record=%s missing", s.id, r.Name)
		}
		if len(values) != len(r.Fields) {
			return nil, errors.Annotatef(ErrSchemaMismatch, "identifier=%s record=%s fields expected=%d actual=%d", s.id, r.Name, len(r.Fields), len(values))
		}
		for _, f := range r.Fields {
			v, ok := values[f.Name]
			if !ok {
				return nil, errors.Annotatef(ErrSchemaMismatch, "identifier=%s record=%s field=%s missing", s.id, r.Name, f.Name)
			}
			b = appendValue(b, f.Type, v)
		}
	}
	return b, nil
}

// Decode never returns partial result, payload length must be exactly Size().
func (s *Schema) Decode(payload []byte) (Data, error) {
	if len(payload) != s.size {
		return nil, errors.Annotatef(ErrSizeMismatch, "identifier=%s expected=%d actual=%d", s.id, s.size, len(payload))
	}
	data := make(Data, len(s.records))
	i := 0
	for _, r := range s.records {
		values := make(Values, len(r.Fields))
		for _, f := range r.Fields {
			n := f.Type.Size()
			values[f.Name] = readValue(payload[i:i+n], f.Type)
			i += n
		}
		data[r.Name] = values
	}
	return data, nil
}

func appendValue(b []byte, t Type, v uint64) []byte {
	var buf [8]byte
	switch t {
	case Uint8:
		buf[0] = uint8(v)
	case Uint16:
		binary.BigEndian.PutUint16(buf[:], uint16(v))
	case Uint32:
		binary.BigEndian.PutUint32(buf[:], uint32(v))
	case Uint64:
		binary.BigEndian.PutUint64(buf[:], v)
	}
	return append(b, buf[:t.Size()]...)
}

func readValue(b []byte, t Type) uint64 {
	switch t {
	case Uint8:
		return uint64(b[0])
	case Uint16:
		return uint64(binary.BigEndian.Uint16(b))
	case Uint32:
		return uint64(binary.BigEndian.Uint32(b))
	case Uint64:
		return binary.BigEndian.Uint64(b)
	}
	panic("code error readValue invalid type=" + t.String())
}
