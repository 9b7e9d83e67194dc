// Package mcu provides typed commands to the microcontroller.
//
// Each operation is a single request on the link: a Request frame with a
// fresh sequence value, answered by an Ack or Response. Any other reply
// type fails the call with *link.CommandError. Multi-byte fields are big
// endian and floats are IEEE-754 single precision.
package mcu
