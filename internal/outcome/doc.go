// Package outcome defines how a completed call is classified for circuit
// breaking: success, failure, or ignored entirely.
//
// Two strategy shapes exist. A plain Strategy decides from the response
// status or the transport error alone, synchronously. A ContentStrategy
// additionally inspects the response body; its verdict arrives only after
// the body has been consumed, so the breaker learns the outcome
// asynchronously, possibly after the original call has already returned to
// its caller.
package outcome
