package discovery

import "go.uber.org/atomic"

// Snapshot is the discovered set from spec.md §3: every worker found by
// the most recent probe pass, regardless of classification, plus the
// generation it was published at. The routable subset is whatever
// Worker.Status.Routable() reports true for; callers that need only
// routable workers (e.g. selection.routableOf) filter it themselves.
// It is immutable once built.
type Snapshot struct {
	Workers    []Worker
	Generation uint64
}

// publisher holds the single atomically-swapped current Snapshot that
// the prober writes and every other component reads. This is the
// publish-snapshot protocol from spec.md §5: readers never block on the
// prober, and a publish is visible all-or-nothing.
type publisher struct {
	value atomic.Value
	gen   atomic.Uint64
}

func newPublisher() *publisher {
	p := &publisher{}
	p.value.Store(Snapshot{})
	return p
}

// publish stores workers as the new current snapshot under the next
// generation number.
func (p *publisher) publish(workers []Worker) Snapshot {
	gen := p.gen.Inc()
	snap := Snapshot{Workers: workers, Generation: gen}
	p.value.Store(snap)
	return snap
}

// load returns the current snapshot.
func (p *publisher) load() Snapshot {
	return p.value.Load().(Snapshot)
}
