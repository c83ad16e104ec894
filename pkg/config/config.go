// Package config loads and validates fleetctl's process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the complete set of environment-provided knobs from
// SPEC_FULL.md §6.
type Config struct {
	PromURL     string `envconfig:"PROM_URL" default:"http://localhost:9090"`
	DockerImage string `envconfig:"DOCKER_IMAGE" required:"true"`
	FleetLabel  string `envconfig:"FLEET_LABEL" required:"true"`

	MinInstances int     `envconfig:"MIN_INSTANCES" default:"1"`
	MaxInstances int     `envconfig:"MAX_INSTANCES" default:"10"`
	CPUThreshold float64 `envconfig:"CPU_THRESHOLD" default:"0.7"`
	HostCPUCount int     `envconfig:"HOST_CPU_COUNT" default:"1"`

	CheckInterval      time.Duration `envconfig:"CHECK_INTERVAL" default:"30s"`
	DiscoveryInterval  time.Duration `envconfig:"DISCOVERY_INTERVAL" default:"300s"`
	GracePeriod        time.Duration `envconfig:"GRACE_PERIOD" default:"600s"`
	OverlayNetwork     string        `envconfig:"OVERLAY_NETWORK" default:"pnu_cloud_computing_mynet"`
	WorkerPort         int           `envconfig:"WORKER_PORT" default:"5000"`
	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":8000"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
	TargetsFile        string        `envconfig:"TARGETS_FILE" default:"/app/prometheus/targets/flask.json"`
}

// Load reads Config from the process environment and validates it.
func Load() (*Config, error) {
	// The interval variables are given in seconds; a bare number is read
	// as seconds, and a Go duration string such as "30s" is also accepted.
	for _, name := range []string{"CHECK_INTERVAL", "DISCOVERY_INTERVAL", "GRACE_PERIOD"} {
		if v, ok := os.LookupEnv(name); ok {
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				os.Setenv(name, v+"s")
			}
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the invariants spec.md assumes the configuration
// already satisfies.
func (c *Config) Validate() error {
	if c.MinInstances < 0 {
		return fmt.Errorf("MIN_INSTANCES must be >= 0, got %d", c.MinInstances)
	}
	if c.MaxInstances < c.MinInstances {
		return fmt.Errorf("MAX_INSTANCES (%d) must be >= MIN_INSTANCES (%d)", c.MaxInstances, c.MinInstances)
	}
	if c.CPUThreshold <= 0 || c.CPUThreshold > 1 {
		return fmt.Errorf("CPU_THRESHOLD must be in (0, 1], got %f", c.CPUThreshold)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}
	if c.HostCPUCount <= 0 {
		return fmt.Errorf("HOST_CPU_COUNT must be positive, got %d", c.HostCPUCount)
	}
	return nil
}
