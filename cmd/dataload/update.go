package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/transfer"
)

func newUpdateCmd(a *app) *cobra.Command {
	var handoff string

	cmd := &cobra.Command{
		Use:   "update --handoff <file.csv>",
		Short: "Run the delta update pass over a handoff file kept by an earlier import",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			pass, err := pipeline.RunUpdate(cmd.Context(), handoff, a.files)
			if pass != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Update pass: %s\n", pass.Counts)
			}
			if err != nil {
				a.logger.Error("Update failed", zap.Error(err))
				return withCode(exitFailure, err)
			}
			return a.finish(cmd)
		},
	}

	cmd.Flags().StringVar(&handoff, "handoff", "", "Handoff file written by an import in delta mode")
	_ = cmd.MarkFlagRequired("handoff")
	return cmd
}

// finish prints the run summary for passes that do not build one
// themselves. It must follow a.pipeline.
func (a *app) finish(cmd *cobra.Command) error {
	summary, err := transfer.NewFinalizer(a.entityStore, a.opts, a.files, a.logger).Run(cmd.Context(), a.start)
	if summary != nil {
		fmt.Fprint(cmd.OutOrStdout(), summary.Report())
	}
	if err != nil {
		return withCode(exitFailure, errors.Join(errors.New("failed to summarize run"), err))
	}
	return nil
}
