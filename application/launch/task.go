package launch

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/reglet-dev/reglet-launcher/application/template"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/domain/ports"
	"github.com/reglet-dev/reglet-launcher/host"
	"github.com/reglet-dev/reglet-launcher/hostfuncs"
)

// Startup argument prefixes and environment variables every module receives.
const (
	NamespaceArgPrefix = "--launcher.namespace="
	PortArgPrefix      = "--server.port="

	EnvPort      = "PORT"
	EnvNamespace = "MODULE_NAMESPACE"
)

// ModuleLoader builds and resolves isolated contexts. *host.Loader
// implements it.
type ModuleLoader interface {
	Load(ctx context.Context, archivePath string) (*host.IsolatedContext, error)
	ResolveEntryPoint(ctx context.Context, ic *host.IsolatedContext) (*host.EntryPoint, error)
}

// Observer is told about every state a launch passes through. err is set
// for Failed, and for Exited when the running module failed.
type Observer interface {
	OnTransition(d entities.LaunchDescriptor, state entities.TaskState, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d entities.LaunchDescriptor, state entities.TaskState, err error)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(d entities.LaunchDescriptor, state entities.TaskState, err error) {
	f(d, state, err)
}

// Task starts one module. It never returns an error: every failure is
// logged with the archive path and port, then reported to the observer.
type Task struct {
	loader   ModuleLoader
	engine   ports.TemplateEngine
	observer Observer
	logger   *slog.Logger
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithObserver sets the state observer.
func WithObserver(o Observer) TaskOption {
	return func(t *Task) {
		t.observer = o
	}
}

// WithTemplateEngine sets the engine rendering manifest arguments.
func WithTemplateEngine(e ports.TemplateEngine) TaskOption {
	return func(t *Task) {
		t.engine = e
	}
}

// WithTaskLogger sets the task logger.
func WithTaskLogger(logger *slog.Logger) TaskOption {
	return func(t *Task) {
		t.logger = logger
	}
}

// NewTask creates a Task loading modules with loader.
func NewTask(loader ModuleLoader, opts ...TaskOption) *Task {
	t := &Task{
		loader: loader,
		engine: template.NewGoTemplateEngine(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run loads, resolves and invokes the module described by d, blocking
// while the module runs.
func (t *Task) Run(ctx context.Context, d entities.LaunchDescriptor) {
	logger := t.logger.With(
		"module", d.Module,
		"archive_path", d.ArchivePath,
		"port", d.Port,
		"namespace", d.Namespace())
	tr := &tracker{d: d, observer: t.observer, state: entities.TaskSubmitted}
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "launch task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	err := t.launch(ctx, d, tr, logger)

	switch {
	case tr.state != entities.TaskRunning:
		if err == nil {
			err = fmt.Errorf("launch of %s ended in state %s", d.ArchivePath, tr.state)
		}
		tr.to(entities.TaskFailed, err)
		logger.ErrorContext(ctx, "module launch failed",
			"kind", string(errors.KindOf(err)),
			"error", err)
	case err == nil:
		tr.to(entities.TaskExited, nil)
		logger.InfoContext(ctx, "module exited", "uptime", time.Since(tr.runningSince))
	case ctx.Err() != nil && stdErrors.Is(err, ctx.Err()):
		tr.to(entities.TaskExited, nil)
		logger.InfoContext(ctx, "module stopped", "uptime", time.Since(tr.runningSince))
	default:
		tr.to(entities.TaskExited, err)
		logger.ErrorContext(ctx, "module failed",
			"kind", string(errors.KindOf(err)),
			"uptime", time.Since(tr.runningSince),
			"error", err)
	}
}

func (t *Task) launch(ctx context.Context, d entities.LaunchDescriptor, tr *tracker, logger *slog.Logger) (err error) {
	identifier := ""
	defer func() {
		if r := recover(); r != nil {
			err = &errors.EntryPointInvocationError{
				Path:       d.ArchivePath,
				Identifier: identifier,
				Err:        fmt.Errorf("panic: %v", r),
				Stack:      debug.Stack(),
			}
		}
	}()

	tr.to(entities.TaskLoading, nil)
	ic, err := t.loader.Load(ctx, d.ArchivePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ic.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.WarnContext(ctx, "failed to release isolated context", "error", cerr)
		}
	}()
	manifest := ic.Manifest()
	identifier = manifest.Start

	tr.to(entities.TaskResolving, nil)
	ep, err := t.loader.ResolveEntryPoint(ctx, ic)
	if err != nil {
		return err
	}
	identifier = ep.ID().String()

	tr.to(entities.TaskInvoking, nil)
	extra, err := template.RenderArgs(t.engine, manifest.Args, template.LaunchValues(manifest.Name, d))
	if err != nil {
		return &errors.EntryPointInvocationError{
			Path:       d.ArchivePath,
			Identifier: identifier,
			Err:        fmt.Errorf("render arguments: %w", err),
		}
	}

	return ep.Invoke(ctx, host.Invocation{
		Args: StartupArgs(manifest.Name, d, extra),
		Env:  StartupEnv(d),
		Port: d.Port,
		Identity: hostfuncs.ModuleIdentity{
			Name:        manifest.Name,
			Namespace:   d.Namespace(),
			ArchivePath: d.ArchivePath,
			Port:        d.Port,
		},
		OnRunning: func() {
			tr.to(entities.TaskRunning, nil)
			logger.InfoContext(ctx, "module running", "entry_point", identifier)
		},
	})
}

// submitted reports that d was handed to the pool.
func (t *Task) submitted(d entities.LaunchDescriptor) {
	if t.observer != nil {
		t.observer.OnTransition(d, entities.TaskSubmitted, nil)
	}
}

// StartupArgs builds a module's argv: program name, namespace, port, then
// the manifest's rendered arguments.
func StartupArgs(name string, d entities.LaunchDescriptor, extra []string) []string {
	args := []string{
		name,
		NamespaceArgPrefix + d.Namespace(),
		PortArgPrefix + strconv.Itoa(d.Port),
	}
	return append(args, extra...)
}

// StartupEnv returns the environment every module receives.
func StartupEnv(d entities.LaunchDescriptor) map[string]string {
	return map[string]string{
		EnvPort:      strconv.Itoa(d.Port),
		EnvNamespace: d.Namespace(),
	}
}

// tracker records a launch's state and reports each transition.
type tracker struct {
	observer     Observer
	runningSince time.Time
	d            entities.LaunchDescriptor
	state        entities.TaskState
}

func (tr *tracker) to(next entities.TaskState, err error) {
	if !tr.state.CanTransition(next) {
		return
	}
	tr.state = next
	if next == entities.TaskRunning {
		tr.runningSince = time.Now()
	}
	if tr.observer != nil {
		tr.observer.OnTransition(tr.d, next, err)
	}
}
