// Package runtime is the capability interface onto the container
// runtime: enumerate, create, remove, and inspect the worker fleet.
// Callers never talk to the Docker client directly; they go through
// Adapter so that the autoscaler and discovery prober can be tested
// against a fake.
package runtime
