// Package promquery is the Metrics Adapter: it executes exactly one
// instantaneous scalar query against a Prometheus-compatible backend per
// autoscaler tick.
package promquery
