package autoscaler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cloudfleet/fleetctl/pkg/promquery"
	"github.com/cloudfleet/fleetctl/pkg/runtime"
	"github.com/cloudfleet/fleetctl/pkg/runtime/fake"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type stubMetrics struct {
	value float64
	err   error
}

func (s stubMetrics) QueryScalar(ctx context.Context, expr string) (float64, error) {
	return s.value, s.err
}

type stubTrigger struct {
	raised int
}

func (s *stubTrigger) Raise() { s.raised++ }

func baseConfig() Config {
	return Config{
		Label:         "demo",
		Image:         "demo:latest",
		MinInstances:  1,
		MaxInstances:  5,
		CPUThreshold:  0.7,
		HostCPUCount:  4,
		CheckInterval: 30 * time.Second,
	}
}

// fixedClock lets tests advance time deterministically without
// sleeping.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newTestAutoscaler(cfg Config, rt runtime.Adapter, metrics MetricsSource, trigger Rediscoverer) (*Autoscaler, *fixedClock) {
	a := New(cfg, rt, metrics, testLogger(), trigger)
	clock := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	a.now = clock.now
	return a, clock
}

func TestTickFloorEnforcementBypassesCooldown(t *testing.T) {
	rt := fake.New() // zero containers, min=1
	trigger := &stubTrigger{}
	a, clock := newTestAutoscaler(baseConfig(), rt, stubMetrics{}, trigger)

	// A scale action one second ago puts the tick inside cooldown.
	a.mu.Lock()
	a.lastScaleTime = clock.t.Add(-time.Second)
	a.mu.Unlock()

	a.Tick(context.Background())

	if rt.RunCalls != 1 {
		t.Fatalf("expected one Run call for floor enforcement, got %d", rt.RunCalls)
	}
	st := a.Status()
	if !st.LastScaleTime.Equal(clock.t) {
		t.Fatal("expected last_scale_time to be stamped")
	}
	if trigger.raised != 1 {
		t.Fatalf("expected an immediate rediscovery trigger, got %d raises", trigger.raised)
	}
}

func TestTickCooldownSkipsMetricsFetch(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "w1", false, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 0 // avoid floor enforcement so cooldown path is reached

	calls := 0
	metrics := countingMetrics{n: &calls}
	a, clock := newTestAutoscaler(cfg, rt, metrics, nil)

	a.mu.Lock()
	a.lastScaleTime = clock.t
	a.mu.Unlock()

	a.Tick(context.Background())
	if calls != 0 {
		t.Fatalf("expected metrics fetch to be skipped during cooldown, got %d calls", calls)
	}
}

type countingMetrics struct{ n *int }

func (c countingMetrics) QueryScalar(ctx context.Context, expr string) (float64, error) {
	*c.n++
	return 0, nil
}

func TestTickMetricFetchFailureRetainsTimers(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "w1", false, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 0

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{err: promquery.ErrFetchFailed}, nil)

	a.mu.Lock()
	a.aboveSince = clock.t.Add(-10 * time.Second)
	a.mu.Unlock()

	a.Tick(context.Background())

	st := a.Status()
	if st.AboveSince.IsZero() {
		t.Fatal("expected above_since to be retained across a metric fetch failure")
	}
	if !st.LastScaleTime.IsZero() {
		t.Fatal("expected no scale action on metric fetch failure")
	}
}

func TestTickScaleOutFiresAfterDwell(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "w1", false, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 0

	// avg_cpu_percent = (raw / (count*hostCPU))*100; force > threshold*100
	metrics := stubMetrics{value: 100} // 100/(1*4)*100 = 2500% >> 70%
	trigger := &stubTrigger{}
	a, clock := newTestAutoscaler(cfg, rt, metrics, trigger)

	a.Tick(context.Background()) // enters band, sets above_since
	if st := a.Status(); st.AboveSince.IsZero() {
		t.Fatal("expected above_since to be set on first breach")
	}
	if rt.RunCalls != 0 {
		t.Fatal("should not scale out before dwell elapses")
	}

	clock.t = clock.t.Add(scaleOutDwell)
	a.Tick(context.Background())

	if rt.RunCalls != 1 {
		t.Fatalf("expected scale-out after dwell, got %d Run calls", rt.RunCalls)
	}
	if trigger.raised != 1 {
		t.Fatal("expected immediate rediscovery after scale-out")
	}
	if st := a.Status(); !st.AboveSince.IsZero() || !st.BelowSince.IsZero() {
		t.Fatal("expected both timers cleared after a scale action")
	}
}

func TestTickScaleOutRespectsMaxInstances(t *testing.T) {
	rt := fake.New()
	for i := 0; i < 5; i++ {
		rt.Seed(string(rune('a'+i)), string(rune('a'+i)), false, "10.0.0.1")
	}
	cfg := baseConfig()
	cfg.MinInstances = 0
	cfg.MaxInstances = 5

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 1000}, nil)
	a.Tick(context.Background())
	clock.t = clock.t.Add(scaleOutDwell)
	a.Tick(context.Background())

	if rt.RunCalls != 0 {
		t.Fatalf("expected no scale-out at max_instances, got %d Run calls", rt.RunCalls)
	}
}

func TestTickScaleInRemovesLastUnfixedAfter60s(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "fixed-base", true, "10.0.0.1")
	rt.Seed("c2", "extra", false, "10.0.0.2")
	cfg := baseConfig()
	cfg.MinInstances = 1

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 0}, nil) // avg=0 < threshold/2

	a.Tick(context.Background()) // sets below_since
	clock.t = clock.t.Add(scaleInRemoveDwell)
	a.Tick(context.Background())

	if len(rt.RemoveCalls) != 1 || rt.RemoveCalls[0] != "c2" {
		t.Fatalf("expected c2 removed, got %v", rt.RemoveCalls)
	}
}

func TestTickScaleInNeverRemovesFixedAsLastContainer(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "fixed-only", true, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 0 // count(1) > min(0), so the 60s branch is reachable

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 0}, nil)

	a.Tick(context.Background())
	clock.t = clock.t.Add(scaleInRemoveDwell)
	a.Tick(context.Background())

	if len(rt.RemoveCalls) != 0 {
		t.Fatalf("expected the fixed container to survive, got removals: %v", rt.RemoveCalls)
	}
}

func TestTickScaleInFastPathRemovesAutoscaledSurplusAt15s(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "fixed-base", true, "10.0.0.1")
	rt.Seed("c2", "extra", false, "10.0.0.2")
	cfg := baseConfig()
	cfg.MinInstances = 2 // count(2) == min(2): 60s branch cannot fire

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 0}, nil)

	a.Tick(context.Background())
	clock.t = clock.t.Add(scaleInFastDwell)
	a.Tick(context.Background())

	if len(rt.RemoveCalls) != 1 || rt.RemoveCalls[0] != "c2" {
		t.Fatalf("expected fast-path removal of the autoscaled surplus, got %v", rt.RemoveCalls)
	}
}

func TestTickScaleInLogsWithoutActionAt30sWhenNoneRemovable(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "fixed-only", true, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 1 // count(1) == min(1): 60s branch cannot fire; no non-fixed exists for 15s branch

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 0}, nil)

	a.Tick(context.Background())
	clock.t = clock.t.Add(scaleInLogDwell)
	a.Tick(context.Background())

	if len(rt.RemoveCalls) != 0 {
		t.Fatalf("expected no removal, got %v", rt.RemoveCalls)
	}
	if st := a.Status(); st.BelowSince.IsZero() {
		t.Fatal("expected below_since to be retained when no container is removable")
	}
}

func TestTickNeutralBandClearsTimers(t *testing.T) {
	rt := fake.New()
	rt.Seed("c1", "w1", false, "10.0.0.1")
	cfg := baseConfig()
	cfg.MinInstances = 0

	a, clock := newTestAutoscaler(cfg, rt, stubMetrics{value: 1000}, nil)
	a.Tick(context.Background()) // sets above_since
	if st := a.Status(); st.AboveSince.IsZero() {
		t.Fatal("expected above_since to be set")
	}

	clock.t = clock.t.Add(time.Second)
	a2 := a
	a2.metrics = stubMetrics{value: 2} // 2/(1*4)*100 = 50%: neutral band, between threshold/2 (35%) and threshold (70%)
	a2.Tick(context.Background())

	if st := a2.Status(); !st.AboveSince.IsZero() {
		t.Fatal("expected above_since cleared on leaving the scale-out band")
	}
}

func TestTickListFailureLogsAndReturns(t *testing.T) {
	rt := fake.New()
	rt.ListErr = errors.New("daemon unreachable")
	a, _ := newTestAutoscaler(baseConfig(), rt, stubMetrics{}, nil)

	a.Tick(context.Background()) // must not panic
	if rt.RunCalls != 0 {
		t.Fatal("expected no scale action when listing fails")
	}
}
