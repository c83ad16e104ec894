// Package discovery implements the Discovery & Health Prober: it
// enumerates workers on the configured overlay network, probes their
// /health endpoint, classifies each as healthy/unhealthy/degraded, and
// publishes the resulting discovered set. Consumers that need only
// routable workers filter on Worker.Status.Routable().
package discovery
