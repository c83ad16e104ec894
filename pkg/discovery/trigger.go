package discovery

// Trigger is a one-shot wakeup signal collapsing any number of raises
// between consumptions into a single pending wakeup, per spec.md §4.D
// and §9 ("shared flag between threads"). The zero value is a nil
// channel: Raise on it does nothing and C never delivers a wakeup, so
// build triggers with NewTrigger.
type Trigger chan struct{}

// NewTrigger returns a ready-to-use capacity-1 trigger channel.
func NewTrigger() Trigger {
	return make(Trigger, 1)
}

// Raise requests an immediate re-run. It never blocks: a pending raise
// that hasn't been consumed yet is left as-is.
func (t Trigger) Raise() {
	select {
	case t <- struct{}{}:
	default:
	}
}

// C exposes the channel for select statements.
func (t Trigger) C() <-chan struct{} {
	return t
}
