package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/model"
)

// Pass names, used in logs and metric labels
const (
	PassImport   = "import"
	PassUpdate   = "update"
	PassRollback = "rollback"
)

// BatchSource yields batches in increasing line order and io.EOF at the end
type BatchSource interface {
	Header() ([]string, error)
	Next() (*model.Batch, error)
}

// Importer runs the bulk create pass
type Importer struct {
	store    EntityStore
	opts     Options
	sinks    ImportSinks
	counters *Counters
	metrics  *Metrics
	logger   *zap.Logger
}

// NewImporter creates an importer writing outcomes to sinks
func NewImporter(store EntityStore, opts Options, sinks ImportSinks, metrics *Metrics, logger *zap.Logger) *Importer {
	return &Importer{
		store:    store,
		opts:     opts.withDefaults(),
		sinks:    sinks,
		counters: NewCounters(PassImport, metrics),
		metrics:  metrics,
		logger:   logger.Named("import"),
	}
}

// Counters returns the live counters of the pass
func (im *Importer) Counters() *Counters {
	return im.counters
}

// Run submits every batch of src to the pool and waits for all of them.
// A reader error stops submission; batches already submitted still finish
// before the error is returned.
func (im *Importer) Run(ctx context.Context, src BatchSource) (*PassResult, error) {
	result := NewPassResult(PassImport)

	header, err := src.Header()
	if err != nil {
		return result, WrapError(err, "failed to read header")
	}

	recorder := NewRecorder(im.sinks, im.counters, im.opts.Retry, header,
		im.opts.IdentifierField, im.opts.DeltaMigration, im.logger)
	throttle := NewThrottle(im.opts.Workers, im.opts.RateLimit)

	im.logger.Info("Starting import",
		zap.String("typeName", im.opts.TypeName),
		zap.Int("workers", im.opts.Workers),
		zap.Int("queueLimit", im.opts.QueueLimit()),
		zap.Duration("minTaskDuration", throttle.MinDuration()),
		zap.Bool("dryRun", im.opts.DryRun),
		zap.Bool("deltaMigration", im.opts.DeltaMigration),
		zap.Stringer("retryPolicy", im.opts.Retry))

	pool := NewPool(ctx, im.opts.Workers, im.opts.QueueLimit(), im.logger)

	var readErr error
	for {
		batch, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			im.logger.Error("Stopping submission after read error", zap.Error(err))
			readErr = err
			break
		}

		job := NewBatchJob(batch)
		if err := pool.Submit(ctx, im.batchTask(job, recorder, throttle)); err != nil {
			readErr = err
			break
		}
		result.Submitted++

		im.logger.Debug("Batch submitted",
			zap.Int("batch", batch.ID),
			zap.String("lines", job.Lines()),
			zap.Int("queued", pool.Queued()))
	}

	poolErr := pool.Wait()
	result.Complete(im.counters.Snapshot())

	im.logger.Info("Import finished",
		zap.Int("batches", result.Submitted),
		zap.Stringer("progress", result.Counts),
		zap.Duration("duration", result.Duration))

	if readErr != nil {
		return result, readErr
	}
	if poolErr != nil {
		return result, WrapError(poolErr, "import pass failed")
	}
	return result, nil
}

func (im *Importer) batchTask(job BatchJob, recorder *Recorder, throttle Throttle) Task {
	return func(ctx context.Context) error {
		start := time.Now()
		defer throttle.Hold(ctx, start)

		batch := job.Batch
		if im.opts.DryRun {
			return recorder.DryRun(batch)
		}

		res, err := im.store.BulkCreate(ctx, im.opts.TypeName, batch.Records)
		im.metrics.ObserveCall(PassImport, time.Since(start), err)
		if err != nil {
			return recorder.CallFailed(batch, err)
		}

		if err := recorder.BatchResult(batch, res); err != nil {
			return err
		}
		im.logger.Info("Batch completed",
			zap.Int("batch", batch.ID),
			zap.String("lines", job.Lines()),
			zap.Stringer("progress", im.counters.Snapshot()))
		return nil
	}
}
