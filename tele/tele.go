// Package tele holds types shared by telemetry sender, receiver and sinks.
package tele

import (
	"fmt"

	"github.com/temoto/udpinsert/schema"
)

const TagSize = 6

// Message is one datagram worth of telemetry.
// Timestamp is unix seconds, assigned by sender clock on encode
// and recovered by authentication window search on decode.
type Message struct {
	Identifier schema.Identifier
	Nonce      uint16
	Timestamp  uint64
	Payload    []byte
	Tag        [TagSize]byte
	Database   string
}

func (m *Message) String() string {
	return fmt.Sprintf("(identifier=%s nonce=%d time=%d payload=%x tag=%x)",
		m.Identifier, m.Nonce, m.Timestamp, m.Payload, m.Tag)
}
