package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/cloudfleet/fleetctl/pkg/promquery"
	"github.com/cloudfleet/fleetctl/pkg/runtime"
)

const (
	scaleOutDwell      = 180 * time.Second
	scaleInRemoveDwell = 60 * time.Second
	scaleInFastDwell   = 15 * time.Second
	scaleInLogDwell    = 30 * time.Second
)

// MetricsSource is the subset of promquery.Client the autoscaler
// depends on.
type MetricsSource interface {
	QueryScalar(ctx context.Context, expr string) (float64, error)
}

// Rediscoverer lets the autoscaler request an out-of-cadence discovery
// pass right after a scale action, per spec.md §4.D's rationale.
type Rediscoverer interface {
	Raise()
}

// Config bundles the autoscaler's fixed parameters.
type Config struct {
	Label         string
	Image         string
	MinInstances  int
	MaxInstances  int
	CPUThreshold  float64 // fraction, e.g. 0.7
	HostCPUCount  int
	CheckInterval time.Duration
}

// cpuQuery renders the Prometheus expression spec.md §6 fixes for a
// given fleet label.
func cpuQuery(label string) string {
	return fmt.Sprintf(
		`sum(rate(container_cpu_usage_seconds_total{container_label_autoscale_service="%s"}[1m]))`,
		label,
	)
}

// Status is a read-only snapshot of the autoscaler's internal timers,
// exposed for introspection and tests.
type Status struct {
	Count         int
	AboveSince    time.Time
	BelowSince    time.Time
	LastScaleTime time.Time
}

// Autoscaler runs the tick loop of spec.md §4.C. Tick is never called
// concurrently with itself (§5); its internal state needs no locking
// against itself, only against concurrent Status() reads.
type Autoscaler struct {
	cfg     Config
	rt      runtime.Adapter
	metrics MetricsSource
	log     *zap.SugaredLogger
	trigger Rediscoverer
	now     func() time.Time

	mu            sync.Mutex
	aboveSince    time.Time
	belowSince    time.Time
	lastScaleTime time.Time
	lastCount     int
}

// New builds an Autoscaler. trigger may be nil, in which case scale
// actions do not request an immediate rediscovery.
func New(cfg Config, rt runtime.Adapter, metrics MetricsSource, log *zap.SugaredLogger, trigger Rediscoverer) *Autoscaler {
	return &Autoscaler{
		cfg:     cfg,
		rt:      rt,
		metrics: metrics,
		log:     log,
		trigger: trigger,
		now:     time.Now,
	}
}

// Status returns the current timer/count snapshot.
func (a *Autoscaler) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Count:         a.lastCount,
		AboveSince:    a.aboveSince,
		BelowSince:    a.belowSince,
		LastScaleTime: a.lastScaleTime,
	}
}

// Run ticks every CheckInterval until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick executes one pass of spec.md §4.C. Any error is logged and
// swallowed: the loop always continues on the next tick.
func (a *Autoscaler) Tick(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "autoscaler.Tick")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("fleet.label", a.cfg.Label))

	containers, err := a.rt.List(ctx, a.cfg.Label)
	if err != nil {
		a.log.Errorw("autoscaler: failed to list fleet", "error", err)
		return
	}
	count := len(containers)
	span.AddAttributes(trace.Int64Attribute("fleet.count", int64(count)))

	a.mu.Lock()
	a.lastCount = count
	a.mu.Unlock()

	// Step 2: floor enforcement bypasses cooldown entirely.
	if count < a.cfg.MinInstances {
		a.scaleOut(ctx, "floor enforcement")
		return
	}

	// Step 3: cooldown.
	now := a.now()
	a.mu.Lock()
	last := a.lastScaleTime
	a.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < a.cfg.CheckInterval {
		return
	}

	// Step 4: CPU fetch.
	raw, err := a.metrics.QueryScalar(ctx, cpuQuery(a.cfg.Label))
	if err != nil {
		if errors.Is(err, promquery.ErrFetchFailed) {
			a.log.Warnw("autoscaler: metric fetch failed, retaining timers", "error", err)
		} else {
			a.log.Errorw("autoscaler: unexpected metrics error", "error", err)
		}
		return
	}

	var avgCPUPercent float64
	if count > 0 {
		avgCPUPercent = (raw / (float64(count) * float64(a.cfg.HostCPUCount))) * 100
	}

	threshold := a.cfg.CPUThreshold * 100
	switch {
	case avgCPUPercent > threshold:
		a.handleScaleOutBand(ctx, now)
	case avgCPUPercent < threshold/2:
		a.handleScaleInBand(ctx, now, containers, count)
	default:
		a.clearBothTimers()
	}
}

func (a *Autoscaler) handleScaleOutBand(ctx context.Context, now time.Time) {
	a.mu.Lock()
	a.belowSince = time.Time{}
	if a.aboveSince.IsZero() {
		a.aboveSince = now
		a.mu.Unlock()
		return
	}
	dwell := now.Sub(a.aboveSince)
	a.mu.Unlock()

	if dwell >= scaleOutDwell {
		a.mu.Lock()
		count := a.lastCount
		a.mu.Unlock()
		if count < a.cfg.MaxInstances {
			a.scaleOut(ctx, "sustained high CPU")
		}
	}
}

func (a *Autoscaler) handleScaleInBand(ctx context.Context, now time.Time, containers []runtime.Container, count int) {
	a.mu.Lock()
	a.aboveSince = time.Time{}
	if a.belowSince.IsZero() {
		a.belowSince = now
		a.mu.Unlock()
		return
	}
	dwell := now.Sub(a.belowSince)
	a.mu.Unlock()

	if dwell >= scaleInRemoveDwell && count > a.cfg.MinInstances {
		if last := containers[len(containers)-1]; !last.Fixed {
			a.scaleIn(ctx, last.ID, "sustained low CPU, last container")
			return
		}
	}

	if dwell >= scaleInFastDwell {
		if victim, ok := lastAutoscaled(containers); ok {
			a.scaleIn(ctx, victim.ID, "sustained low CPU, autoscaled surplus")
			return
		}
	}

	if dwell >= scaleInLogDwell {
		a.log.Infow("autoscaler: no removable container", "dwell", dwell)
	}
}

// lastAutoscaled returns the last container in the snapshot that is
// not fixed.
func lastAutoscaled(containers []runtime.Container) (runtime.Container, bool) {
	for i := len(containers) - 1; i >= 0; i-- {
		if !containers[i].Fixed {
			return containers[i], true
		}
	}
	return runtime.Container{}, false
}

func (a *Autoscaler) scaleOut(ctx context.Context, reason string) {
	if err := a.rt.Run(ctx, a.cfg.Image, a.cfg.Label); err != nil {
		a.log.Errorw("autoscaler: scale-out failed", "reason", reason, "error", err)
		return
	}
	a.log.Infow("autoscaler: scaled out", "reason", reason)
	a.stampScaleAction()
}

func (a *Autoscaler) scaleIn(ctx context.Context, id, reason string) {
	if err := a.rt.Remove(ctx, id); err != nil {
		a.log.Errorw("autoscaler: scale-in failed", "reason", reason, "container", id, "error", err)
		return
	}
	a.log.Infow("autoscaler: scaled in", "reason", reason, "container", id)
	a.stampScaleAction()
}

// stampScaleAction clears both breach timers and stamps last_scale_time,
// per spec.md §8 invariant 1, and requests an immediate rediscovery so
// the new or removed worker is reflected in the routable set without
// waiting for the discovery cadence.
func (a *Autoscaler) stampScaleAction() {
	a.mu.Lock()
	a.aboveSince = time.Time{}
	a.belowSince = time.Time{}
	a.lastScaleTime = a.now()
	a.mu.Unlock()

	if a.trigger != nil {
		a.trigger.Raise()
	}
}

func (a *Autoscaler) clearBothTimers() {
	a.mu.Lock()
	a.aboveSince = time.Time{}
	a.belowSince = time.Time{}
	a.mu.Unlock()
}
