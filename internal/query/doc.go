// Package query implements the admin console protocol client: command
// framing, escaped-string encoding, multi-row reply decoding, and
// status-code interpretation over one exclusively-owned TCP connection.
//
// Ownership boundary:
// - connection lifecycle and timeout-bounded frame I/O
// - escape/unescape and reply decoding into records
// - one operation per admin command, at most one request in flight
package query
