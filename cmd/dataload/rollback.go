package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRollbackCmd(a *app) *cobra.Command {
	var successLog string

	cmd := &cobra.Command{
		Use:   "rollback --success-log <file.csv>",
		Short: "Delete every entity listed in a success log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			pass, err := pipeline.RunRollback(cmd.Context(), successLog, a.files)
			if pass != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Rollback pass: %s\n", pass.Counts)
			}
			if err != nil {
				a.logger.Error("Rollback failed", zap.Error(err))
				return withCode(exitFailure, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&successLog, "success-log", "", "Success log written by an import")
	_ = cmd.MarkFlagRequired("success-log")
	return cmd
}
