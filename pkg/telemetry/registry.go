package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the three controller-owned gauges spec.md §6 names
// and the registry they are served from.
type Registry struct {
	reg *prometheus.Registry

	backendServersTotal   prometheus.Gauge
	backendServersHealthy prometheus.Gauge
	uptime                prometheus.GaugeFunc
}

// New builds a Registry. start is the process start time, used to
// derive load_balancer_uptime on every scrape.
func New(start time.Time) *Registry {
	reg := prometheus.NewRegistry()

	backendServersTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backend_servers_total",
		Help: "Number of backend worker containers currently discovered.",
	})
	backendServersHealthy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backend_servers_healthy",
		Help: "Number of backend worker containers currently routable.",
	})
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "load_balancer_uptime",
		Help: "Seconds since the controller process started.",
	}, func() float64 {
		return time.Since(start).Seconds()
	})

	reg.MustRegister(backendServersTotal, backendServersHealthy, uptime)

	return &Registry{
		reg:                   reg,
		backendServersTotal:   backendServersTotal,
		backendServersHealthy: backendServersHealthy,
		uptime:                uptime,
	}
}

// SetBackendCounts updates the two backend-count gauges from the
// latest discovery pass.
func (r *Registry) SetBackendCounts(total, healthy int) {
	r.backendServersTotal.Set(float64(total))
	r.backendServersHealthy.Set(float64(healthy))
}

// Gatherer exposes the underlying registry for promhttp/expfmt use.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
