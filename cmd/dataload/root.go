package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/config"
	"github.com/David-Botos/entity-dataload/pkg/entityapi"
	"github.com/David-Botos/entity-dataload/pkg/logging"
	"github.com/David-Botos/entity-dataload/pkg/sink"
	"github.com/David-Botos/entity-dataload/pkg/transfer"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

// app carries what every subcommand needs once the root pre-run is done
type app struct {
	envFiles []string
	flags    flagValues

	cfg      *config.Config
	logger   *zap.Logger
	files    sink.RunFiles
	start    time.Time
	metrics  *transfer.Metrics
	closeLog func() error
	server   *http.Server

	// Set by pipeline
	opts        transfer.Options
	entityStore transfer.EntityStore
}

// flagValues mirrors the env settings a flag can override
type flagValues struct {
	typeName        string
	batchSize       int
	startAt         int
	workers         int
	queueSize       int
	timeout         time.Duration
	rateLimit       float64
	dryRun          bool
	delta           bool
	primaryKey      string
	identifierField string
	logDir          string
	logLevel        string
	logFormat       string
	metricsAddr     string
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dataload",
		Short:         "Bulk load records from CSV into the entity store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "Env files to load when present")
	f.StringVar(&a.flags.typeName, "type", "", "Entity type name (DATALOAD_TYPE_NAME)")
	f.IntVar(&a.flags.batchSize, "batch-size", 0, "Records per bulk create call (DATALOAD_BATCH_SIZE)")
	f.IntVar(&a.flags.startAt, "start-at", 0, "First data record to load, 1-based (DATALOAD_START_AT)")
	f.IntVar(&a.flags.workers, "workers", 0, "Concurrent API calls (DATALOAD_WORKERS)")
	f.IntVar(&a.flags.queueSize, "queue-size", 0, "Pending task limit, 0 derives it (DATALOAD_QUEUE_SIZE)")
	f.DurationVar(&a.flags.timeout, "timeout", 0, "Per call timeout (DATALOAD_TIMEOUT)")
	f.Float64Var(&a.flags.rateLimit, "rate-limit", 0, "API calls per second, 0 disables (DATALOAD_RATE_LIMIT)")
	f.BoolVar(&a.flags.dryRun, "dry-run", false, "Read and transform without calling the API (DATALOAD_DRY_RUN)")
	f.BoolVar(&a.flags.delta, "delta", false, "Update records rejected as duplicates (DATALOAD_DELTA_MIGRATION)")
	f.StringVar(&a.flags.primaryKey, "primary-key", "", "Key attribute for updates (DATALOAD_PRIMARY_KEY)")
	f.StringVar(&a.flags.identifierField, "identifier-field", "", "Column written to the logs (DATALOAD_IDENTIFIER_FIELD)")
	f.StringVar(&a.flags.logDir, "log-dir", "", "Directory for result files and the run log (DATALOAD_LOG_DIR)")
	f.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (DATALOAD_LOG_LEVEL)")
	f.StringVar(&a.flags.logFormat, "log-format", "", "console or json (DATALOAD_LOG_FORMAT)")
	f.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (DATALOAD_METRICS_ADDR)")

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newUpdateCmd(a))
	cmd.AddCommand(newRollbackCmd(a))
	cmd.AddCommand(newExtractCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	return cmd
}

func Execute() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.shutdown()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

// setup loads and validates the configuration, then starts logging and
// the optional metrics endpoint.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return withCode(exitValidation, err)
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return withCode(exitValidation, fmt.Errorf("invalid configuration: %w", err))
	}
	a.cfg = cfg

	a.start = time.Now()
	a.files = sink.NewRunFiles(cfg.LogDir, a.start)
	a.logger, a.closeLog, err = logging.New(cfg.LogLevel, cfg.LogFormat, a.files.LogPath())
	if err != nil {
		return withCode(exitValidation, err)
	}

	reg := prometheus.NewRegistry()
	if a.metrics, err = transfer.NewMetrics(reg); err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		a.serveMetrics(reg, cfg.MetricsAddr)
	}

	a.logger.Info("Configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("typeName", cfg.TypeName),
		zap.Int("batchSize", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Float64("rateLimit", cfg.RateLimit),
		zap.Bool("dryRun", cfg.DryRun),
		zap.Bool("delta", cfg.DeltaMigration),
		zap.String("logDir", cfg.LogDir))
	return nil
}

// applyFlags copies the flags set on the command line over the env values
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	v := a.flags

	if set("type") {
		cfg.TypeName = v.typeName
	}
	if set("batch-size") {
		cfg.BatchSize = v.batchSize
	}
	if set("start-at") {
		cfg.StartAt = v.startAt
	}
	if set("workers") {
		cfg.Workers = v.workers
	}
	if set("queue-size") {
		cfg.QueueSize = v.queueSize
	}
	if set("timeout") {
		cfg.Timeout = v.timeout
	}
	if set("rate-limit") {
		cfg.RateLimit = v.rateLimit
	}
	if set("dry-run") {
		cfg.DryRun = v.dryRun
	}
	if set("delta") {
		cfg.DeltaMigration = v.delta
	}
	if set("primary-key") {
		cfg.PrimaryKey = v.primaryKey
	}
	if set("identifier-field") {
		cfg.IdentifierField = v.identifierField
	}
	if set("log-dir") {
		cfg.LogDir = v.logDir
	}
	if set("log-level") {
		cfg.LogLevel = v.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = v.logFormat
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = v.metricsAddr
	}
}

func (a *app) serveMetrics(reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", addr))
}

// shutdown stops the metrics endpoint and flushes the run log
func (a *app) shutdown() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// store returns the entity API client. A dry run without credentials gets
// a nil store, since it never makes a remote call.
func (a *app) store() (transfer.EntityStore, error) {
	if err := a.cfg.ValidateCredentials(); err != nil {
		if a.cfg.DryRun {
			a.logger.Warn("No API credentials, continuing because this is a dry run")
			return nil, nil
		}
		return nil, withCode(exitValidation, err)
	}

	client, err := entityapi.NewClient(a.cfg.API.URL, a.cfg.API.ClientID, a.cfg.API.ClientSecret, a.logger)
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	return client.WithTimeout(a.cfg.Timeout), nil
}

func (a *app) options(registry *transform.Registry) transfer.Options {
	cfg := a.cfg
	return transfer.Options{
		TypeName:             cfg.TypeName,
		Workers:              cfg.Workers,
		QueueSize:            cfg.QueueSize,
		RateLimit:            cfg.RateLimit,
		DryRun:               cfg.DryRun,
		DeltaMigration:       cfg.DeltaMigration,
		PrimaryKey:           cfg.PrimaryKey,
		IdentifierField:      cfg.IdentifierField,
		ForbiddenUpdateAttrs: cfg.UpdateForbidden,
		Retry:                transfer.NewRetryPolicy(cfg.RetryAPICodes, cfg.RetryHTTPCodes),
		Registry:             registry,
	}
}

// pipeline resolves the transforms and builds a pipeline against the store
func (a *app) pipeline() (*transfer.Pipeline, error) {
	registry, err := a.cfg.Registry()
	if err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("invalid transforms: %w", err))
	}
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	a.opts = a.options(registry)
	a.entityStore = store
	return transfer.NewPipeline(store, a.opts, a.logger).WithMetrics(a.metrics), nil
}
