package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/reader"
)

type importOptions struct {
	delimiter string
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create entities from a CSV file, then update duplicates in delta mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.delimiter, "delimiter", ",", "Field delimiter of the input file")
	return cmd
}

func (a *app) runImport(cmd *cobra.Command, path string, opts importOptions) error {
	delimiter, err := parseDelimiter(opts.delimiter)
	if err != nil {
		return withCode(exitValidation, err)
	}

	pipeline, err := a.pipeline()
	if err != nil {
		return err
	}
	r, err := reader.NewBatchReader(path, a.cfg.BatchSize, a.cfg.StartAt, a.opts.Registry, a.logger)
	if err != nil {
		return withCode(exitValidation, err)
	}
	defer r.Close()
	r.WithDelimiter(delimiter)

	// Encoding problems must stop the run before anything is sent
	if err := r.ValidateEncoding(); err != nil {
		return withCode(exitValidation, err)
	}

	result, err := pipeline.Run(cmd.Context(), r, a.files)
	if result != nil && result.Summary != nil {
		fmt.Fprint(cmd.OutOrStdout(), result.Summary.Report())
	}
	if result != nil && result.HandoffPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Handoff kept, resume with: dataload update --handoff %s\n", result.HandoffPath)
	}
	if err != nil {
		a.logger.Error("Import failed", zap.Error(err))
		return withCode(exitFailure, err)
	}
	return nil
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 || runes[0] == '"' || runes[0] == '\n' || runes[0] == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return runes[0], nil
}
