// Package link provides the request/response facility over a single
// unreliable byte link to the microcontroller.
package link

// One background goroutine (Engine.Run) owns the transport. It reconnects
// on failure, writes queued frames, decodes received bytes and dispatches
// them:
//
//   - Notify frames are published to subscribers.
//   - Request frames from the peer are handed to the request Handler.
//   - Response/Ack/Nack frames complete the pending request with the same
//     sequence value and command.
//
// Callers block in SendAndWait on their own request only. Each request has
// a deadline which is enforced on every tick, connected or not, so no call
// outlives its timeout. Sequence values are 8-bit and shared by all
// commands; a sequence value can only be used by one pending request.
