package runtime

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable wraps any failure to reach the container runtime at all
// (daemon down, socket missing). Callers should skip the current tick or
// discovery pass and retry on the next one.
var ErrUnavailable = errors.New("runtime unavailable")

// ErrNetworkMissing wraps the case where an inspected container reports
// no network settings at all. A container that is merely not attached to
// the named network is not an error: NetworkIP returns ok=false.
var ErrNetworkMissing = errors.New("network missing")

// Unavailablef wraps err as ErrUnavailable with an action description.
func Unavailablef(action string, err error) error {
	return fmt.Errorf("%s: %w: %w", action, err, ErrUnavailable)
}

// Container is the runtime-level view of a fleet member: just enough to
// drive discovery and scale decisions, nothing workload-specific.
type Container struct {
	ID      string
	Name    string
	Fixed   bool
	Created int64 // unix seconds, used to order containers deterministically
}

// Adapter is the capability interface spec.md §4.A describes. A single
// implementation (Docker) backs it in production; tests use a fake.
type Adapter interface {
	// List returns every running container tagged with label, in stable
	// creation order.
	List(ctx context.Context, label string) ([]Container, error)

	// Run starts one new container from image tagged with label.
	Run(ctx context.Context, image, label string) error

	// Remove force-removes the container identified by id.
	Remove(ctx context.Context, id string) error

	// NetworkIP returns the IPv4 address of the container on the named
	// overlay network, or ok=false if it is not attached.
	NetworkIP(ctx context.Context, id, networkName string) (ip string, ok bool, err error)
}
