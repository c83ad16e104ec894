// Package selection implements the Selection Policy: given the current
// routable set published by discovery, choose the next worker to send
// a request to under either a round-robin or latency-aware policy.
package selection
