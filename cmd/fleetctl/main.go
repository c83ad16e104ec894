// Command fleetctl runs the fleet controller: an autoscaler, a
// discovery/health prober, and an HTTP load balancer in one process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudfleet/fleetctl/pkg/autoscaler"
	"github.com/cloudfleet/fleetctl/pkg/config"
	"github.com/cloudfleet/fleetctl/pkg/control"
	"github.com/cloudfleet/fleetctl/pkg/discovery"
	"github.com/cloudfleet/fleetctl/pkg/logging"
	"github.com/cloudfleet/fleetctl/pkg/promquery"
	"github.com/cloudfleet/fleetctl/pkg/proxy"
	"github.com/cloudfleet/fleetctl/pkg/runtime"
	"github.com/cloudfleet/fleetctl/pkg/selection"
	"github.com/cloudfleet/fleetctl/pkg/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't built yet; this is a bootstrap failure.
		os.Stderr.WriteString("fleetctl: " + err.Error() + "\n")
		return 1
	}

	log := logging.New(cfg.LogLevel, "fleetctl")
	defer log.Sync() //nolint:errcheck

	rt, err := runtime.NewDockerAdapter(cfg.OverlayNetwork, log.Named("runtime"))
	if err != nil {
		log.Errorw("bootstrap: failed to build docker client", "error", err)
		return 1
	}

	metrics := promquery.New(cfg.PromURL)
	trigger := discovery.NewTrigger()

	prober := discovery.New(discovery.Config{
		Label:       cfg.FleetLabel,
		Network:     cfg.OverlayNetwork,
		WorkerPort:  cfg.WorkerPort,
		Interval:    cfg.DiscoveryInterval,
		GracePeriod: cfg.GracePeriod,
	}, rt, log.Named("discovery"), trigger)

	scaler := autoscaler.New(autoscaler.Config{
		Label:         cfg.FleetLabel,
		Image:         cfg.DockerImage,
		MinInstances:  cfg.MinInstances,
		MaxInstances:  cfg.MaxInstances,
		CPUThreshold:  cfg.CPUThreshold,
		HostCPUCount:  cfg.HostCPUCount,
		CheckInterval: cfg.CheckInterval,
	}, rt, metrics, log.Named("autoscaler"), trigger)

	selector := selection.New(prober, selection.RoundRobin)
	forwarder := proxy.NewForwarder(selector, log.Named("proxy"))
	loadHandler := proxy.NewHandler(forwarder, log.Named("proxy"))
	registry := telemetry.New(time.Now())

	server := control.NewServer(selector, prober, registry, loadHandler, log.Named("control"))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go prober.Run(ctx)
	go scaler.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("fleetctl: listening", "addr", cfg.ListenAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("fleetctl: shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Errorw("fleetctl: listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("fleetctl: graceful HTTP shutdown failed", "error", err)
	}

	cleanupOwnedContainers(shutdownCtx, rt, cfg.FleetLabel, log)
	resetTargetsFile(cfg.TargetsFile, log)

	log.Info("fleetctl: shutdown complete")
	return 0
}

// cleanupOwnedContainers removes every container carrying the fleet
// label, per spec.md §5's cancellation contract.
func cleanupOwnedContainers(ctx context.Context, rt runtime.Adapter, label string, log interface {
	Errorw(string, ...any)
	Infow(string, ...any)
}) {
	containers, err := rt.List(ctx, label)
	if err != nil {
		log.Errorw("fleetctl: failed to list owned containers during shutdown", "error", err)
		return
	}
	for _, c := range containers {
		if err := rt.Remove(ctx, c.ID); err != nil {
			log.Errorw("fleetctl: failed to remove container during shutdown", "container", c.Name, "error", err)
			continue
		}
		log.Infow("fleetctl: removed container during shutdown", "container", c.Name)
	}
}

// resetTargetsFile clears the scrape-targets file to an empty array,
// per spec.md §6's persisted-state contract.
func resetTargetsFile(path string, log interface{ Warnw(string, ...any) }) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		log.Warnw("fleetctl: failed to reset targets file", "path", path, "error", err)
	}
}
