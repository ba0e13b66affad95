package telenet

import (
	"encoding/binary"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/schema"
	"github.com/temoto/udpinsert/tele"
)

const (
	NonceSize    = 2
	HeaderSize   = schema.IdentifierSize + NonceSize
	MinFrameSize = HeaderSize + tele.TagSize
)

var ErrFrameShort = fmt.Errorf("message of wrong size")

func PeekIdentifier(b []byte) (schema.Identifier, error) {
	var id schema.Identifier
	if len(b) < schema.IdentifierSize {
		return id, errors.Annotatef(ErrFrameShort, "length=%d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FrameMarshal encodes data and signs it with timestamp.
func FrameMarshal(s *schema.Schema, data schema.Data, nonce uint16, timestamp uint64) (*tele.Message, []byte, error) {
	payload, err := s.Encode(data)
	if err != nil {
		return nil, nil, errors.Annotate(err, "encode")
	}
	id := s.Identifier()
	b := make([]byte, HeaderSize, MinFrameSize+len(payload))
	copy(b, id[:])
	binary.BigEndian.PutUint16(b[schema.IdentifierSize:], nonce)
	b = append(b, payload...)
	tag := Sign(b, s.Secret(), timestamp)
	b = append(b, tag[:]...)

	m := &tele.Message{
		Identifier: id,
		Nonce:      nonce,
		Timestamp:  timestamp,
		Payload:    payload,
		Tag:        tag,
		Database:   s.Database(),
	}
	return m, b, nil
}

// FrameUnmarshal authenticates `b` against schema secret and decodes payload.
// Returned message does not reference `b`.
func FrameUnmarshal(b []byte, s *schema.Schema, now int64, maxDeltaT int) (*tele.Message, schema.Data, error) {
	if len(b) < MinFrameSize {
		return nil, nil, errors.Annotatef(ErrFrameShort, "length=%d min=%d", len(b), MinFrameSize)
	}
	id, _ := PeekIdentifier(b)
	if id != s.Identifier() {
		return nil, nil, errors.Annotatef(schema.ErrUnknownSchema, "identifier=%s schema=%s", id, s.Identifier())
	}
	timestamp, err := Verify(b, s.Secret(), now, maxDeltaT)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "identifier=%s", id)
	}

	m := &tele.Message{
		Identifier: id,
		Nonce:      binary.BigEndian.Uint16(b[schema.IdentifierSize:]),
		Timestamp:  timestamp,
		Payload:    append([]byte(nil), b[HeaderSize:len(b)-tele.TagSize]...),
		Database:   s.Database(),
	}
	copy(m.Tag[:], b[len(b)-tele.TagSize:])

	data, err := s.Decode(m.Payload)
	if err != nil {
		return m, nil, errors.Annotate(err, "decode")
	}
	return m, data, nil
}
