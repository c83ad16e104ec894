// Package fake provides an in-memory runtime.Adapter for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudfleet/fleetctl/pkg/runtime"
)

// Adapter is a goroutine-safe in-memory runtime.Adapter.
type Adapter struct {
	mu          sync.Mutex
	seq         int64
	containers  map[string]runtime.Container
	ips         map[string]string
	RunErr      error
	RemoveErr   error
	ListErr     error
	RunCalls    int
	RemoveCalls []string
}

// New returns an empty fake adapter.
func New() *Adapter {
	return &Adapter{
		containers: make(map[string]runtime.Container),
		ips:        make(map[string]string),
	}
}

// Seed adds a pre-existing container, as if discovered on the daemon.
func (a *Adapter) Seed(id, name string, fixed bool, ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.containers[id] = runtime.Container{ID: id, Name: name, Fixed: fixed, Created: a.seq}
	if ip != "" {
		a.ips[id] = ip
	}
}

func (a *Adapter) List(ctx context.Context, label string) ([]runtime.Container, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	out := make([]runtime.Container, 0, len(a.containers))
	for _, c := range a.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func (a *Adapter) Run(ctx context.Context, image, label string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RunCalls++
	if a.RunErr != nil {
		return a.RunErr
	}
	a.seq++
	id := fmt.Sprintf("c%d", a.seq)
	a.containers[id] = runtime.Container{ID: id, Name: id, Created: a.seq}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RemoveCalls = append(a.RemoveCalls, id)
	if a.RemoveErr != nil {
		return a.RemoveErr
	}
	delete(a.containers, id)
	delete(a.ips, id)
	return nil
}

func (a *Adapter) NetworkIP(ctx context.Context, id, networkName string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ip, ok := a.ips[id]
	return ip, ok, nil
}
