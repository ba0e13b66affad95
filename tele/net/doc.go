// Package telenet is UDP transport for compact authenticated telemetry.
//
// One datagram carries exactly one message:
//
//   [identifier 3][nonce 2][payload, schema defined size][tag 6]
//
// Tag is first 6 bytes of SHA-256(identifier, nonce, payload, secret, timestamp).
// Timestamp (unix seconds, 8 bytes) is not sent, receiver finds it by trying every
// second in window [now-maxDeltaT, now+maxDeltaT). So maxDeltaT limits both
// tolerated clock skew and per datagram hashing cost.
// Accepted (timestamp, nonce) pairs are remembered for the same window to reject replay.
//
// There is no handshake, acknowledgement or retry. Lost datagram is lost.
// All integers are big-endian.
package telenet
