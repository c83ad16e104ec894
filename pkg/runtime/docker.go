package runtime

import (
	"context"
	"fmt"
	"sort"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const (
	fleetLabelKey = "autoscale_service"
	fixedLabelKey = "autoscale_fixed"
)

// isFixedLabel reports whether a container's labels mark it as a fixed,
// non-autoscalable fleet member.
func isFixedLabel(labels map[string]string) bool {
	return labels[fixedLabelKey] == "true"
}

// dockerAPI is the subset of the Docker client fleetctl relies on; it
// exists so tests can substitute a fake without standing up a daemon.
type dockerAPI interface {
	ContainerList(ctx context.Context, options dockertypes.ContainerListOptions) ([]dockertypes.Container, error)
	ContainerInspect(ctx context.Context, id string) (dockertypes.ContainerJSON, error)
	ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig,
		netCfg *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, options dockertypes.ContainerStartOptions) error
	ContainerRemove(ctx context.Context, id string, options dockertypes.ContainerRemoveOptions) error
	Ping(ctx context.Context) (dockertypes.Ping, error)
}

// DockerAdapter implements Adapter against a live Docker Engine.
type DockerAdapter struct {
	cli     dockerAPI
	network string
	log     *zap.SugaredLogger
}

// NewDockerAdapter connects to the Docker daemon configured by the
// standard DOCKER_HOST environment (client.FromEnv), negotiating the API
// version so fleetctl runs against whatever daemon version is present.
func NewDockerAdapter(overlayNetwork string, log *zap.SugaredLogger) (*DockerAdapter, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, Unavailablef("connecting to docker daemon", err)
	}
	return &DockerAdapter{cli: cli, network: overlayNetwork, log: log}, nil
}

func (d *DockerAdapter) List(ctx context.Context, label string) ([]Container, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", fleetLabelKey, label))
	f.Add("status", "running")

	cts, err := d.cli.ContainerList(ctx, dockertypes.ContainerListOptions{Filters: f})
	if err != nil {
		return nil, Unavailablef(fmt.Sprintf("listing containers for label %q", label), err)
	}

	out := make([]Container, 0, len(cts))
	for _, c := range cts {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, Container{
			ID:      c.ID,
			Name:    name,
			Fixed:   isFixedLabel(c.Labels),
			Created: c.Created,
		})
	}

	// Stable creation order regardless of what the daemon returned.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Created != out[j].Created {
			return out[i].Created < out[j].Created
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *DockerAdapter) Run(ctx context.Context, image, label string) error {
	// Give every autoscaled container a unique, greppable name instead of
	// leaving it to Docker's random-word generator: fleet label plus a
	// short random suffix keeps log correlation readable without risking
	// collisions across concurrent scale-outs.
	name := fmt.Sprintf("%s-%s", label, uuid.NewString()[:8])

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  image,
			Labels: map[string]string{fleetLabelKey: label},
		},
		&container.HostConfig{},
		&network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				d.network: {},
			},
		},
		nil,
		name,
	)
	if err != nil {
		return Unavailablef(fmt.Sprintf("creating container from image %q", image), err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, dockertypes.ContainerStartOptions{}); err != nil {
		return Unavailablef("starting container "+resp.ID, err)
	}
	d.log.Infow("started container", "id", resp.ID, "image", image, "label", label)
	return nil
}

func (d *DockerAdapter) Remove(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{Force: true}); err != nil {
		return Unavailablef("removing container "+id, err)
	}
	d.log.Infow("removed container", "id", id)
	return nil
}

func (d *DockerAdapter) NetworkIP(ctx context.Context, id, networkName string) (string, bool, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", false, Unavailablef("inspecting container "+id, err)
	}
	if info.NetworkSettings == nil {
		return "", false, fmt.Errorf("container %s: %w", id, ErrNetworkMissing)
	}
	ep, ok := info.NetworkSettings.Networks[networkName]
	if !ok || ep.IPAddress == "" {
		return "", false, nil
	}
	return ep.IPAddress, true, nil
}
