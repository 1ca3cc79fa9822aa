package launch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/infrastructure/archive"
	"github.com/sourcegraph/conc/pool"
)

// Coordinator submits one Task per module and returns without waiting.
type Coordinator struct {
	task     *Task
	nextPort func() int
	logger   *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPortAllocator draws ports from a instead of the process-wide
// allocator.
func WithPortAllocator(a *PortAllocator) CoordinatorOption {
	return func(c *Coordinator) {
		c.nextPort = a.Next
	}
}

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator running task for every module.
func NewCoordinator(task *Task, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		task:     task,
		nextPort: NextPort,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LaunchAll resolves every name to an archive under moduleHome, allocates
// its port and submits its task to a pool with exactly len(names) workers.
// It returns once all tasks are submitted; tasks keep running afterwards.
// Blank names are skipped. A list with no usable name is a configuration
// error and submits nothing.
func (c *Coordinator) LaunchAll(ctx context.Context, moduleHome string, names []string) (*Fleet, error) {
	names = c.usableNames(ctx, names)
	if len(names) == 0 {
		return nil, &errors.ConfigurationMissingError{Setting: "modules", EnvVar: "MODULES"}
	}

	p := pool.New().WithMaxGoroutines(len(names))
	fleet := &Fleet{
		descriptors: make([]entities.LaunchDescriptor, 0, len(names)),
		done:        make(chan struct{}),
	}

	for _, name := range names {
		req := entities.ModuleRequest{Name: name}
		d := entities.LaunchDescriptor{
			Module:      req.Name,
			ArchivePath: archive.Resolve(moduleHome, req.Name),
			Port:        c.nextPort(),
		}
		fleet.descriptors = append(fleet.descriptors, d)

		c.logger.InfoContext(ctx, "submitting module",
			"module", d.Module,
			"archive_path", d.ArchivePath,
			"port", d.Port)
		c.task.submitted(d)
		p.Go(func() {
			c.task.Run(ctx, d)
		})
	}

	go func() {
		p.Wait()
		close(fleet.done)
	}()

	c.logger.InfoContext(ctx, "all modules submitted", "count", len(names), "module_home", moduleHome)
	return fleet, nil
}

func (c *Coordinator) usableNames(ctx context.Context, names []string) []string {
	out := make([]string, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			c.logger.WarnContext(ctx, "skipping blank module name", "index", i)
			continue
		}
		out = append(out, name)
	}
	return out
}

// Fleet is a handle on the tasks submitted by one LaunchAll call.
type Fleet struct {
	done        chan struct{}
	descriptors []entities.LaunchDescriptor
}

// Descriptors returns the launched descriptors in submission order.
func (f *Fleet) Descriptors() []entities.LaunchDescriptor {
	return append([]entities.LaunchDescriptor(nil), f.descriptors...)
}

// Done is closed once every task has returned.
func (f *Fleet) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until every task has returned.
func (f *Fleet) Wait() {
	<-f.done
}
