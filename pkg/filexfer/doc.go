// Package filexfer transfers files over the link in fixed-size blocks.
//
// An upload is Notify, Start, Data for every block and Complete, each one
// a request acknowledged by the receiving end before the next is sent.
// Every Data block carries its index and CRC-16; the receiver only
// accepts the next expected index. A resent Start, or a resent copy of
// the block just accepted, is acknowledged again without being applied,
// since the sender retries when an Ack is lost. Either side aborts with
// Cancel or Error.
package filexfer
