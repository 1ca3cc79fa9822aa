package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reglet-dev/reglet-launcher/application/config"
	"github.com/reglet-dev/reglet-launcher/application/launch"
	launcherErrors "github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/host"
	"github.com/reglet-dev/reglet-launcher/log"
	"github.com/reglet-dev/reglet-launcher/metrics"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
)

// launchFunc runs the launcher once settings are resolved.
type launchFunc func(ctx context.Context, settings *config.Settings, logger *slog.Logger) error

type deps struct {
	stdout io.Writer
	stderr io.Writer
	launch launchFunc
}

func defaultDeps() deps {
	return deps{stdout: os.Stdout, stderr: os.Stderr, launch: runLauncher}
}

func newRootCommand(d deps) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "reglet-launcher",
		Short: "Launch isolated WebAssembly modules side by side",
		Long: `reglet-launcher resolves each configured module name to an archive
under the module home, gives it a port of its own and starts its entry
point in a private WebAssembly runtime. A module that fails to load or
crashes is logged and never affects the others.

Modules are taken from --modules, the MODULES environment variable or the
"modules" key of the --config file, in that order.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New(cmd.Flags())
			if err != nil {
				return err
			}
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}

			logger := slog.New(log.NewHandler(d.stderr,
				log.WithLevel(log.ParseLevel(v.GetString(config.KeyLogLevel))),
				log.WithFormat(v.GetString(config.KeyLogFormat)),
			))
			slog.SetDefault(logger)

			settings, err := config.Load(v)
			if err != nil {
				var missing *launcherErrors.ConfigurationMissingError
				if errors.As(err, &missing) {
					logger.Error("no modules configured", "error", err)
					return &ExitError{Code: 1, Err: err}
				}
				return err
			}

			return d.launch(cmd.Context(), settings, logger)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newSchemaCommand(d))
	cmd.AddCommand(newValidateCommand(d))

	cmd.SetOut(d.stdout)
	cmd.SetErr(d.stderr)
	return cmd
}

// runLauncher submits every configured module and blocks until they have
// all returned or ctx is cancelled. Cancellation closes every module
// runtime, so the fleet drains promptly afterwards.
func runLauncher(ctx context.Context, settings *config.Settings, logger *slog.Logger) error {
	cache, err := compilationCache(settings.CacheDir)
	if err != nil {
		return err
	}
	defer cache.Close(context.Background())

	collector := metrics.NewLaunchMetricsCollector("")
	if settings.MetricsAddr != "" {
		addr, err := metrics.Serve(ctx, settings.MetricsAddr, collector.Registry(), logger)
		if err != nil {
			return err
		}
		logger.Info("serving metrics", "addr", addr, "path", metrics.Path)
	}

	loader, err := host.NewLoader(
		host.WithCompilationCache(cache),
		host.WithLibraryDir(filepath.Join(settings.ModuleHome, host.LibraryDirName)),
		host.WithLogger(logger),
		host.WithOutput(os.Stdout, os.Stderr),
	)
	if err != nil {
		return err
	}
	defer loader.Close(context.Background())

	task := launch.NewTask(loader,
		launch.WithObserver(collector),
		launch.WithTaskLogger(logger),
	)
	coordinator := launch.NewCoordinator(task,
		launch.WithPortAllocator(launch.NewPortAllocator(settings.BasePort)),
		launch.WithCoordinatorLogger(logger),
	)

	fleet, err := coordinator.LaunchAll(ctx, settings.ModuleHome, settings.Modules)
	if err != nil {
		return err
	}

	select {
	case <-fleet.Done():
		logger.Info("all modules exited")
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
		fleet.Wait()
	}
	return nil
}

func compilationCache(dir string) (wazero.CompilationCache, error) {
	if dir == "" {
		return wazero.NewCompilationCache(), nil
	}
	cache, err := wazero.NewCompilationCacheWithDir(dir)
	if err != nil {
		return nil, fmt.Errorf("compilation cache %s: %w", dir, err)
	}
	return cache, nil
}
