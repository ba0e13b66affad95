package telenet

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/tele"
)

var ErrAuth = fmt.Errorf("failed to authenticate message")

// Sign returns truncated SHA-256 of head, secret and big-endian timestamp.
// head is identifier+nonce+payload.
func Sign(head, secret []byte, timestamp uint64) [tele.TagSize]byte {
	h := sha256.New()
	_, _ = h.Write(head)
	_, _ = h.Write(secret)
	return sumTimestamp(h, timestamp)
}

// Verify finds timestamp in [now-maxDeltaT, now+maxDeltaT) which reproduces trailing tag of `b`.
// Upper bound is excluded.
func Verify(b, secret []byte, now int64, maxDeltaT int) (uint64, error) {
	if len(b) < tele.TagSize {
		return 0, errors.Annotatef(ErrFrameShort, "length=%d", len(b))
	}
	head, tag := b[:len(b)-tele.TagSize], b[len(b)-tele.TagSize:]

	h := sha256.New()
	_, _ = h.Write(head)
	_, _ = h.Write(secret)
	// hash state after head+secret is same for every candidate
	var state []byte
	if m, ok := h.(encoding.BinaryMarshaler); ok {
		state, _ = m.MarshalBinary()
	}
	for delta := -maxDeltaT; delta < maxDeltaT; delta++ {
		t := uint64(now + int64(delta))
		if err := restore(h, state, head, secret); err != nil {
			return 0, errors.Annotate(err, "hash state")
		}
		actual := sumTimestamp(h, t)
		if subtle.ConstantTimeCompare(actual[:], tag) == 1 {
			return t, nil
		}
	}
	return 0, errors.Annotatef(ErrAuth, "window=[%d,%d)", now-int64(maxDeltaT), now+int64(maxDeltaT))
}

func restore(h hash.Hash, state, head, secret []byte) error {
	if u, ok := h.(encoding.BinaryUnmarshaler); ok && state != nil {
		return u.UnmarshalBinary(state)
	}
	h.Reset()
	_, _ = h.Write(head)
	_, _ = h.Write(secret)
	return nil
}

func sumTimestamp(h hash.Hash, timestamp uint64) [tele.TagSize]byte {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], timestamp)
	_, _ = h.Write(tb[:])
	var sum [sha256.Size]byte
	var tag [tele.TagSize]byte
	copy(tag[:], h.Sum(sum[:0]))
	return tag
}
