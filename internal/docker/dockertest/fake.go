// Package dockertest provides an in-memory stand-in for the Docker API used by
// the docker package and the container launcher.
package dockertest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Container is the fake's record of a created container.
type Container struct {
	ID         string
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
	Started    bool
	Removed    bool
}

// Fake implements docker.API. Exit codes and logs are keyed by container name.
type Fake struct {
	mu         sync.Mutex
	next       int
	containers map[string]*Container
	order      []string
	networks   map[string]map[string]string

	// ExitCodes sets the status a container reports from ContainerWait
	ExitCodes map[string]int64
	// Logs sets the stderr a container reports from ContainerLogs
	Logs map[string]string
	// Stdout sets the stdout a container reports from ContainerLogs
	Stdout map[string]string
	// RunHook is called on ContainerStart, in its own goroutine, and
	// ContainerWait blocks until it returns
	RunHook func(c *Container)

	// CreateErr, StartErr fail the matching call when set
	CreateErr error
	StartErr  error

	finished map[string]chan struct{}
}

// New returns an empty fake daemon.
func New() *Fake {
	return &Fake{
		containers: make(map[string]*Container),
		networks:   make(map[string]map[string]string),
		ExitCodes:  make(map[string]int64),
		Logs:       make(map[string]string),
		Stdout:     make(map[string]string),
		finished:   make(map[string]chan struct{}),
	}
}

// Containers returns every container created so far, in creation order.
func (f *Fake) Containers() []*Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Container, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.containers[id])
	}
	return out
}

// Networks returns the names of networks that currently exist.
func (f *Fake) Networks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.networks))
	for name := range f.networks {
		out = append(out, name)
	}
	return out
}

func (f *Fake) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return container.CreateResponse{}, f.CreateErr
	}
	f.next++
	id := fmt.Sprintf("c%03d", f.next)
	f.containers[id] = &Container{ID: id, Name: name, Config: config, HostConfig: hostConfig}
	f.order = append(f.order, id)
	f.finished[id] = make(chan struct{})
	return container.CreateResponse{ID: id}, nil
}

func (f *Fake) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	if f.StartErr != nil {
		f.mu.Unlock()
		return f.StartErr
	}
	c, ok := f.containers[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("no such container: %s", id)
	}
	c.Started = true
	done := f.finished[id]
	hook := f.RunHook
	f.mu.Unlock()

	go func() {
		if hook != nil {
			hook(c)
		}
		close(done)
	}()
	return nil
}

func (f *Fake) ContainerWait(ctx context.Context, id string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	f.mu.Lock()
	c, ok := f.containers[id]
	done := f.finished[id]
	f.mu.Unlock()
	if !ok {
		errCh <- fmt.Errorf("no such container: %s", id)
		return statusCh, errCh
	}

	go func() {
		select {
		case <-done:
			f.mu.Lock()
			code := f.ExitCodes[c.Name]
			f.mu.Unlock()
			statusCh <- container.WaitResponse{StatusCode: code}
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return statusCh, errCh
}

// ContainerLogs returns the configured output in Docker's multiplexed format,
// honouring ShowStdout and ShowStderr.
func (f *Fake) ContainerLogs(_ context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	c, ok := f.containers[id]
	var stdout, stderr string
	if ok {
		stdout, stderr = f.Stdout[c.Name], f.Logs[c.Name]
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such container: %s", id)
	}

	var buf bytes.Buffer
	if options.ShowStdout && stdout != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout)); err != nil {
			return nil, err
		}
	}
	if options.ShowStderr && stderr != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr)); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(&buf), nil
}

func (f *Fake) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.Removed = true
	return nil
}

// ContainerList supports "label" filters of the key=value form.
func (f *Fake) ContainerList(_ context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Container
	for _, id := range f.order {
		c := f.containers[id]
		if c.Removed {
			continue
		}
		if options.Filters.Len() > 0 && !options.Filters.MatchKVList("label", c.Config.Labels) {
			continue
		}
		out = append(out, types.Container{ID: c.ID, Names: []string{"/" + c.Name}, Labels: c.Config.Labels})
	}
	return out, nil
}

func (f *Fake) NetworkCreate(_ context.Context, name string, options types.NetworkCreate) (types.NetworkCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.networks[name]; exists {
		return types.NetworkCreateResponse{}, fmt.Errorf("network with name %s already exists", name)
	}
	f.networks[name] = options.Labels
	return types.NetworkCreateResponse{ID: "net-" + name}, nil
}

func (f *Fake) NetworkRemove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[name]; !ok {
		return fmt.Errorf("network %s not found", name)
	}
	delete(f.networks, name)
	return nil
}
