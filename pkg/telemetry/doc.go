// Package telemetry holds the controller-owned Prometheus gauges
// exposed at GET /metrics, ahead of the concatenated upstream worker
// metrics.
package telemetry
