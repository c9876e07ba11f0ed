package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/David-Botos/entity-dataload/pkg/reader"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Check that a file is valid UTF-8",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := reader.ValidateFile(args[0])
			if err != nil {
				return withCode(exitValidation, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: valid UTF-8, %d lines\n", args[0], report.Lines)
			if report.HasBOM {
				fmt.Fprintln(out, "Byte order mark present, it will be skipped on import")
			}
			return nil
		},
	}
}
