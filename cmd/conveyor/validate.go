package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waabox/conveyor/internal/pipeline"
)

func newValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(file)
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok (%d jobs)\n", file, len(p.Jobs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yml", "pipeline definition file")
	return cmd
}
