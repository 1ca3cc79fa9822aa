package main

import (
	"fmt"

	"github.com/reglet-dev/reglet-launcher/application/schema"
	"github.com/spf13/cobra"
)

func newSchemaCommand(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of module.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := schema.ManifestSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(d.stdout, string(data))
			return err
		},
	}
}
