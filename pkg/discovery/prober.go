package discovery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudfleet/fleetctl/pkg/runtime"
)

const (
	// probeTimeout is the fixed per-worker /health timeout. spec.md §4.D
	// tolerates values >= 15s; we probe at exactly that floor so a single
	// wedged worker can't stall a whole discovery pass longer than
	// necessary.
	probeTimeout = 15 * time.Second

	// emptyFleetRetry is how long the prober waits before retrying when
	// a pass finds no workers at all, overriding the normal cadence.
	emptyFleetRetry = 30 * time.Second
)

// Config bundles the prober's fixed parameters.
type Config struct {
	Label       string
	Network     string
	WorkerPort  int
	Interval    time.Duration
	GracePeriod time.Duration
}

// Prober is the Discovery & Health Prober (spec.md §4.D). It owns the
// grace log exclusively and publishes Snapshots that every other
// component reads.
type Prober struct {
	cfg     Config
	rt      runtime.Adapter
	http    *http.Client
	log     *zap.SugaredLogger
	trigger Trigger
	pub     *publisher

	graceMu sync.Mutex
	grace   map[string]time.Time // endpoint URL -> last success time
}

// New builds a Prober. trigger may be shared with other components
// (e.g. the autoscaler) so they can request an immediate rediscovery.
func New(cfg Config, rt runtime.Adapter, log *zap.SugaredLogger, trigger Trigger) *Prober {
	return &Prober{
		cfg:     cfg,
		rt:      rt,
		http:    &http.Client{Timeout: probeTimeout},
		log:     log,
		trigger: trigger,
		pub:     newPublisher(),
		grace:   make(map[string]time.Time),
	}
}

// Snapshot returns the current discovered set.
func (p *Prober) Snapshot() Snapshot {
	return p.pub.load()
}

// Run executes passes on Config.Interval, waking early on an immediate
// trigger, until ctx is cancelled. It never runs two passes
// concurrently (spec.md §5).
func (p *Prober) Run(ctx context.Context) {
	wait := time.Duration(0) // probe immediately on start
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.trigger.C():
			timer.Stop()
		case <-timer.C:
		}

		snap := p.pass(ctx)
		if len(snap.Workers) == 0 {
			wait = emptyFleetRetry
		} else {
			wait = p.cfg.Interval
		}
	}
}

// pass performs one discovery+probe+publish cycle and returns the
// published snapshot.
func (p *Prober) pass(ctx context.Context) Snapshot {
	ctx, span := trace.StartSpan(ctx, "discovery.Pass")
	defer span.End()

	containers, err := p.rt.List(ctx, p.cfg.Label)
	if err != nil {
		p.log.Errorw("discovery: failed to list containers", "error", err)
		return p.pub.publish(nil)
	}

	type candidate struct {
		container runtime.Container
		ip        string
	}
	var candidates []candidate
	for _, c := range containers {
		ip, ok, err := p.rt.NetworkIP(ctx, c.ID, p.cfg.Network)
		if err != nil {
			p.log.Warnw("discovery: failed to read network IP", "container", c.Name, "error", err)
			continue
		}
		if !ok {
			p.log.Debugw("discovery: container not attached to overlay network", "container", c.Name)
			continue
		}
		candidates = append(candidates, candidate{container: c, ip: ip})
	}

	workers := make([]Worker, len(candidates))
	group, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		i, cand := i, cand
		group.Go(func() error {
			workers[i] = p.probeOne(gctx, cand.container, cand.ip)
			return nil
		})
	}
	// Probe failures are folded into classification, never propagated as
	// a group error: a single dead worker must not abort the pass.
	_ = group.Wait()

	snap := p.pub.publish(workers)
	p.log.Infow("discovery: published discovered set", "generation", snap.Generation, "workers", len(workers))
	return snap
}

func (p *Prober) probeOne(ctx context.Context, c runtime.Container, ip string) Worker {
	endpoint := fmt.Sprintf("http://%s:%d", ip, p.cfg.WorkerPort)
	w := Worker{
		ContainerID:   c.ID,
		ContainerName: c.Name,
		NetworkIP:     ip,
		EndpointURL:   endpoint,
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err == nil {
		resp, rerr := p.http.Do(req)
		if rerr == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				w.Status = StatusHealthy
				w.LastLatency = time.Since(start)
				w.LastSuccessTime = time.Now()
				p.recordSuccess(endpoint, w.LastSuccessTime)
				return w
			}
		}
	}

	// Probe failed: candidate for unhealthy, subject to the grace window.
	w.LastLatency = InfiniteLatency
	if last, ok := p.lastSuccess(endpoint); ok && time.Since(last) < p.cfg.GracePeriod {
		w.Status = StatusDegraded
		w.LastSuccessTime = last
		return w
	}
	w.Status = StatusUnhealthy
	return w
}

func (p *Prober) recordSuccess(endpoint string, when time.Time) {
	p.graceMu.Lock()
	defer p.graceMu.Unlock()
	p.grace[endpoint] = when
}

func (p *Prober) lastSuccess(endpoint string) (time.Time, bool) {
	p.graceMu.Lock()
	defer p.graceMu.Unlock()
	t, ok := p.grace[endpoint]
	return t, ok
}
