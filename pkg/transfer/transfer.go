package transfer

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/entityapi"
	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/sink"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

// EntityStore is the remote store the passes write to. *entityapi.Client
// implements it.
type EntityStore interface {
	BulkCreate(ctx context.Context, typeName string, records []model.Record) (*entityapi.BulkCreateResult, error)
	Update(ctx context.Context, typeName, keyAttribute, keyValue string, value model.Record) error
	Delete(ctx context.Context, typeName, id string) error
	Count(ctx context.Context, typeName string) (int64, error)
}

var _ EntityStore = (*entityapi.Client)(nil)

// Options controls every pass of a run
type Options struct {
	TypeName             string
	Workers              int
	QueueSize            int     // 0 derives the limit from Workers and RateLimit
	RateLimit            float64 // Calls per second across all workers; 0 disables throttling
	DryRun               bool
	DeltaMigration       bool
	PrimaryKey           string
	IdentifierField      string
	ForbiddenUpdateAttrs []string
	Retry                RetryPolicy
	Registry             *transform.Registry
	Delimiter            rune // Of the input file, reused for the retry file; 0 means ','
}

// DefaultOptions returns the options of a plain user import
func DefaultOptions() Options {
	return Options{
		TypeName:        "user",
		Workers:         10,
		RateLimit:       4,
		PrimaryKey:      "email",
		IdentifierField: "email",
		Retry:           DefaultRetryPolicy(),
		Registry:        transform.NewRegistry(),
	}
}

// QueueLimit returns the soft limit of pending tasks
func (o Options) QueueLimit() int {
	if o.QueueSize > 0 {
		return o.QueueSize
	}
	limit := int(math.Ceil(2 * o.RateLimit))
	if limit < o.Workers {
		limit = o.Workers
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Registry == nil {
		o.Registry = transform.NewRegistry()
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Retry.APICodes == nil && o.Retry.HTTPCodes == nil {
		o.Retry = DefaultRetryPolicy()
	}
	return o
}

// RunResult is the outcome of a full import run
type RunResult struct {
	Import      *PassResult
	Update      *PassResult // nil unless the update pass ran
	HandoffPath string      // Set when a handoff file was kept for a later update
	Summary     *Summary
}

// Pipeline runs the import pass, the optional delta update pass and the
// finalizer against one set of run files.
type Pipeline struct {
	store   EntityStore
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(store EntityStore, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// WithMetrics mirrors pass counters into m
func (p *Pipeline) WithMetrics(m *Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Run imports src, then updates the duplicates when delta migration is on,
// then summarizes the run. Pass errors are returned after the summary is built.
func (p *Pipeline) Run(ctx context.Context, src BatchSource, files sink.RunFiles) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{}

	// The retry file must replay under the same settings as the input
	if d, ok := src.(interface{ Delimiter() rune }); ok && d.Delimiter() != 0 {
		p.opts.Delimiter = d.Delimiter()
	}

	header, err := src.Header()
	if err != nil {
		return result, WrapError(err, "failed to read header")
	}

	sinks, err := p.openImportSinks(files, header)
	if err != nil {
		return result, err
	}

	importer := NewImporter(p.store, p.opts, sinks, p.metrics, p.logger)
	result.Import, err = importer.Run(ctx, src)
	closeErr := closeImportSinks(sinks)
	runErr := errors.Join(err, closeErr)

	if sinks.Handoff != nil {
		if runErr != nil {
			result.HandoffPath = sinks.Handoff.Path()
			p.logger.Warn("Import failed, handoff file kept for a later update",
				zap.String("path", result.HandoffPath))
		} else {
			result.Update, err = p.RunUpdate(ctx, sinks.Handoff.Path(), files)
			if err != nil {
				result.HandoffPath = sinks.Handoff.Path()
				runErr = err
			}
		}
	}

	result.Summary, err = NewFinalizer(p.store, p.opts, files, p.logger).
		WithImport(result.Import).
		Run(ctx, start)
	if err != nil {
		return result, errors.Join(runErr, err)
	}
	return result, runErr
}

// RunUpdate runs the delta update pass alone over handoffPath
func (p *Pipeline) RunUpdate(ctx context.Context, handoffPath string, files sink.RunFiles) (*PassResult, error) {
	success, err := sink.Create(files.Path(sink.KindUpdateSuccess), sink.UpdateSuccessHeader(p.opts.PrimaryKey))
	if err != nil {
		return nil, err
	}
	defer success.Close()

	fail, err := sink.Create(files.Path(sink.KindUpdateFail), sink.UpdateFailHeader)
	if err != nil {
		return nil, err
	}
	defer fail.Close()

	updater := NewUpdater(p.store, p.opts, UpdateSinks{Success: success, Fail: fail}, p.metrics, p.logger)
	result, err := updater.Run(ctx, handoffPath)
	return result, errors.Join(err, success.Close(), fail.Close())
}

// RunRollback deletes every entity listed in successLogPath
func (p *Pipeline) RunRollback(ctx context.Context, successLogPath string, files sink.RunFiles) (*PassResult, error) {
	success, err := sink.Create(files.Path(sink.KindRollbackSuccess), sink.RollbackSuccessHeader)
	if err != nil {
		return nil, err
	}
	defer success.Close()

	fail, err := sink.Create(files.Path(sink.KindRollbackFail), sink.RollbackFailHeader)
	if err != nil {
		return nil, err
	}
	defer fail.Close()

	rollbacker := NewRollbacker(p.store, p.opts, RollbackSinks{Success: success, Fail: fail}, p.metrics, p.logger)
	result, err := rollbacker.Run(ctx, successLogPath)
	return result, errors.Join(err, success.Close(), fail.Close())
}

func (p *Pipeline) openImportSinks(files sink.RunFiles, header []string) (ImportSinks, error) {
	var sinks ImportSinks
	var err error

	if sinks.Success, err = sink.Create(files.Path(sink.KindSuccess), sink.SuccessHeader); err != nil {
		return sinks, err
	}
	if sinks.Fail, err = sink.Create(files.Path(sink.KindFail), sink.FailHeader); err != nil {
		closeImportSinks(sinks)
		return sinks, err
	}
	retryDelimiter := sink.WithDelimiter(p.opts.Delimiter)
	if sinks.Retry, err = sink.Create(files.Path(sink.KindRetry), header, retryDelimiter); err != nil {
		closeImportSinks(sinks)
		return sinks, err
	}
	if p.opts.DeltaMigration {
		if sinks.Handoff, err = sink.CreateTemp(files.Dir, "handoff_*.csv", sink.HandoffHeader); err != nil {
			closeImportSinks(sinks)
			return sinks, err
		}
	}
	return sinks, nil
}

func closeImportSinks(sinks ImportSinks) error {
	var errs []error
	for _, w := range []*sink.Writer{sinks.Success, sinks.Fail, sinks.Retry, sinks.Handoff} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	return errors.Join(errs...)
}
