package transfer

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/sink"
)

// RollbackSinks are the outcome logs of the rollback pass
type RollbackSinks struct {
	Success *sink.Writer
	Fail    *sink.Writer
}

// Rollbacker deletes the entities listed in a success log
type Rollbacker struct {
	store    EntityStore
	opts     Options
	sinks    RollbackSinks
	counters *Counters
	metrics  *Metrics
	logger   *zap.Logger
}

// NewRollbacker creates a rollbacker writing outcomes to sinks
func NewRollbacker(store EntityStore, opts Options, sinks RollbackSinks, metrics *Metrics, logger *zap.Logger) *Rollbacker {
	return &Rollbacker{
		store:    store,
		opts:     opts.withDefaults(),
		sinks:    sinks,
		counters: NewCounters(PassRollback, metrics),
		metrics:  metrics,
		logger:   logger.Named("rollback"),
	}
}

// Run issues one delete per row of the success log at successLogPath
func (rb *Rollbacker) Run(ctx context.Context, successLogPath string) (*PassResult, error) {
	result := NewPassResult(PassRollback)

	file, err := reader.OpenCSV(successLogPath, ',')
	if err != nil {
		return result, WrapError(err, "failed to open success log")
	}
	defer file.Close()

	if err := file.RequireColumns("batch", "line", "remote_id", "identifying_key"); err != nil {
		return result, WrapError(err, successLogPath)
	}
	batchCol, _ := file.Column("batch")
	lineCol, _ := file.Column("line")
	idCol, _ := file.Column("remote_id")
	keyCol, _ := file.Column("identifying_key")

	throttle := NewThrottle(rb.opts.Workers, rb.opts.RateLimit)
	rb.logger.Info("Starting rollback",
		zap.String("path", successLogPath),
		zap.String("typeName", rb.opts.TypeName),
		zap.Bool("dryRun", rb.opts.DryRun))

	pool := NewPool(ctx, rb.opts.Workers, rb.opts.QueueLimit(), rb.logger)

	var readErr error
	for {
		row, err := file.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = WrapError(err, "failed to read success log")
			break
		}

		job := NewRecordJob(field(row, batchCol), field(row, lineCol), field(row, idCol)).
			WithField("identifying_key", field(row, keyCol))
		if err := pool.Submit(ctx, rb.deleteTask(job, throttle)); err != nil {
			readErr = err
			break
		}
		result.Submitted++
	}

	poolErr := pool.Wait()
	result.Complete(rb.counters.Snapshot())

	rb.logger.Info("Rollback finished",
		zap.Int("records", result.Submitted),
		zap.Stringer("progress", result.Counts),
		zap.Duration("duration", result.Duration))

	if readErr != nil {
		return result, readErr
	}
	return result, WrapError(poolErr, "rollback pass failed")
}

func (rb *Rollbacker) deleteTask(job RecordJob, throttle Throttle) Task {
	return func(ctx context.Context) error {
		start := time.Now()
		defer throttle.Hold(ctx, start)

		if rb.opts.DryRun {
			return rb.fail(job, MessageDryRun)
		}
		if job.Payload == "" {
			return rb.fail(job, "missing remote id")
		}

		err := rb.store.Delete(ctx, rb.opts.TypeName, job.Payload)
		rb.metrics.ObserveCall(PassRollback, time.Since(start), err)
		if err != nil {
			rb.logger.Warn("Delete failed",
				zap.String("batch", job.BatchID),
				zap.String("line", job.Line),
				zap.String("remoteID", job.Payload),
				zap.Error(err))
			return rb.fail(job, Describe(err).Message)
		}

		if err := rb.sinks.Success.Write(job.BatchID, job.Line, job.Payload); err != nil {
			return err
		}
		rb.counters.Add(OutcomeSuccess, 1)
		return nil
	}
}

func (rb *Rollbacker) fail(job RecordJob, message string) error {
	if err := rb.sinks.Fail.Write(job.BatchID, job.Line, job.Field("identifying_key"), message); err != nil {
		return err
	}
	rb.counters.Add(OutcomePermanentFailure, 1)
	return nil
}
