package selection

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/cloudfleet/fleetctl/pkg/discovery"
)

// SnapshotSource supplies the current routable set. discovery.Prober
// satisfies this.
type SnapshotSource interface {
	Snapshot() discovery.Snapshot
}

// Selector implements spec.md §4.E: choose() and set_policy(p) over the
// routable set published by discovery, concurrency-safe against set
// publishes and against policy switches from the control surface.
type Selector struct {
	source SnapshotSource
	policy atomic.String
	cursor atomic.Uint64
}

// New builds a Selector starting under the given policy. p must be
// valid; callers typically pass the configured default.
func New(source SnapshotSource, p Policy) *Selector {
	s := &Selector{source: source}
	s.policy.Store(string(p))
	return s
}

// SetPolicy switches the active policy. It rejects unrecognized
// identifiers without disturbing the current policy.
func (s *Selector) SetPolicy(p Policy) error {
	if !p.valid() {
		return InvalidPolicyError(string(p))
	}
	s.policy.Store(string(p))
	return nil
}

// CurrentPolicy returns the active policy.
func (s *Selector) CurrentPolicy() Policy {
	return Policy(s.policy.Load())
}

// Choose returns the next worker under the active policy. It returns
// ok=false with a nil error if the routable set is currently empty, or
// a non-nil error if the active policy has no selection logic
// (ErrPolicyUnimplemented).
func (s *Selector) Choose() (discovery.Worker, bool, error) {
	switch s.CurrentPolicy() {
	case LeastConnections, Weighted:
		return discovery.Worker{}, false, fmt.Errorf("%w: %q", ErrPolicyUnimplemented, s.CurrentPolicy())
	}

	snap := s.source.Snapshot()
	routable := routableOf(snap)
	if len(routable) == 0 {
		return discovery.Worker{}, false, nil
	}

	switch s.CurrentPolicy() {
	case Latency:
		return chooseLatency(routable), true, nil
	default: // RoundRobin, and the fallback for any unexpected value
		return s.chooseRoundRobin(routable), true, nil
	}
}

func routableOf(snap discovery.Snapshot) []discovery.Worker {
	out := make([]discovery.Worker, 0, len(snap.Workers))
	for _, w := range snap.Workers {
		if w.Status.Routable() {
			out = append(out, w)
		}
	}
	return out
}

// chooseRoundRobin advances the shared cursor modulo the current
// routable length, so a publish that shrinks or grows the set never
// produces an out-of-range index (spec.md §4.E).
func (s *Selector) chooseRoundRobin(routable []discovery.Worker) discovery.Worker {
	n := uint64(len(routable))
	idx := s.cursor.Add(1) - 1
	return routable[idx%n]
}

// chooseLatency returns the routable worker with the smallest
// LastLatency, ties broken by earliest position.
func chooseLatency(routable []discovery.Worker) discovery.Worker {
	best := routable[0]
	for _, w := range routable[1:] {
		if w.LastLatency < best.LastLatency {
			best = w
		}
	}
	return best
}
