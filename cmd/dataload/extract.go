package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/config"
	"github.com/David-Botos/entity-dataload/pkg/connector"
	"github.com/David-Botos/entity-dataload/pkg/extract"
)

type extractOptions struct {
	source  string
	query   string
	table   string
	columns []string
	limit   int
	out     string
}

func newExtractCmd(a *app) *cobra.Command {
	var opts extractOptions

	cmd := &cobra.Command{
		Use:   "extract --source snowflake|postgres (--query SQL | --table schema.table) --out <file.csv>",
		Short: "Export a legacy table or query into an import file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.query == "") == (opts.table == "") {
				return withCode(exitValidation, errors.New("exactly one of --query or --table is required"))
			}
			if opts.limit < 0 {
				return withCode(exitValidation, errors.New("--limit cannot be negative"))
			}
			return a.runExtract(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", config.SourceSnowflake, "Source database: snowflake or postgres")
	cmd.Flags().StringVar(&opts.query, "query", "", "SQL query to export")
	cmd.Flags().StringVar(&opts.table, "table", "", "Table to export, as table or schema.table")
	cmd.Flags().StringSliceVar(&opts.columns, "columns", nil, "Columns to export with --table (default all)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum rows to export with --table, 0 for all")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output CSV file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, opts extractOptions) error {
	ctx := cmd.Context()

	conn, err := connector.NewConnectorFactory(a.logger).Create(ctx, opts.source)
	if err != nil {
		return withCode(exitFailure, err)
	}
	defer conn.Close()

	if err := conn.Validate(ctx); err != nil {
		return withCode(exitFailure, fmt.Errorf("source validation failed: %w", err))
	}

	exporter := extract.NewExporter(conn.DB(), a.logger).
		WithDateLayout(a.cfg.DateLayout).
		WithTimeout(conn.QueryTimeout())

	q := extract.Query{SQL: opts.query, Table: opts.table, Columns: opts.columns, Limit: opts.limit}
	result, err := exporter.Export(ctx, q, opts.out)
	if err != nil {
		a.logger.Error("Extraction failed", zap.Error(err))
		return withCode(exitFailure, err)
	}

	connector.LogConnectionStats(a.logger, conn.Name(), conn.DB())
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d rows (%d columns) to %s in %s\n",
		result.Rows, len(result.Columns), result.Path, result.Duration.Round(time.Millisecond))
	return nil
}
