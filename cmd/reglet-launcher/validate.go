package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/reglet-launcher/host"
	"github.com/spf13/cobra"
)

func newValidateCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive>...",
		Short: "Check that archives load and their entry points resolve",
		Long: `validate runs the load and resolve phases of a launch for each archive
without invoking anything. It exits 1 if any archive fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := host.NewLoader(host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			if err != nil {
				return err
			}
			defer loader.Close(context.Background())

			failed := 0
			for _, path := range args {
				if err := checkArchive(cmd.Context(), loader, path, d.stdout); err != nil {
					fmt.Fprintf(d.stdout, "FAIL %s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d archives failed", failed, len(args))}
			}
			return nil
		},
	}
}

func checkArchive(ctx context.Context, loader *host.Loader, path string, out io.Writer) error {
	ic, err := loader.Load(ctx, path)
	if err != nil {
		return err
	}
	defer ic.Close(ctx)

	ep, err := loader.ResolveEntryPoint(ctx, ic)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok   %s (%s from %s layer)\n", path, ep.ID(), ep.Source().Layer)
	return nil
}
