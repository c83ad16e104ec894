// Package autoscaler implements the fleet Autoscaler Loop: a single
// tick flow that enforces a minimum fleet size, fetches aggregate CPU
// utilization, and scales the fleet up or down under cooldown and
// dwell-time hysteresis.
package autoscaler
