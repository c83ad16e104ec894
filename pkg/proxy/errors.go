package proxy

import "errors"

// ErrNoHealthyWorker is returned when Selection has nothing routable.
var ErrNoHealthyWorker = errors.New("no healthy worker available")

// ErrUpstreamExhausted is returned once both retry loops (§4.F) are
// exhausted without a response.
var ErrUpstreamExhausted = errors.New("all backend servers unavailable")

// maxBodyBytes is the request body size ceiling (5 MiB) from spec.md
// §4.F step 1.
const maxBodyBytes = 5 * 1024 * 1024
