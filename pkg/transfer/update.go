package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/sink"
)

// Attributes the entity store manages itself; they are never sent on update
var readOnlyAttributes = []string{"id", "uuid", "created", "lastUpdated"}

// UpdateSinks are the outcome logs of the update pass
type UpdateSinks struct {
	Success *sink.Writer
	Fail    *sink.Writer
}

// Updater replays the handoff file of an import as single-record updates
// keyed on the primary key.
type Updater struct {
	store    EntityStore
	opts     Options
	sinks    UpdateSinks
	counters *Counters
	metrics  *Metrics
	logger   *zap.Logger
}

// NewUpdater creates an updater writing outcomes to sinks
func NewUpdater(store EntityStore, opts Options, sinks UpdateSinks, metrics *Metrics, logger *zap.Logger) *Updater {
	return &Updater{
		store:    store,
		opts:     opts.withDefaults(),
		sinks:    sinks,
		counters: NewCounters(PassUpdate, metrics),
		metrics:  metrics,
		logger:   logger.Named("update"),
	}
}

// Counters returns the live counters of the pass
func (u *Updater) Counters() *Counters {
	return u.counters
}

// Run updates one entity per handoff row. A missing file is a no-op and a
// file without rows is deleted immediately. After a clean pass the handoff
// file is deleted; on error it is kept so the pass can be re-run.
func (u *Updater) Run(ctx context.Context, handoffPath string) (*PassResult, error) {
	result := NewPassResult(PassUpdate)

	rows, err := sink.CountRecords(handoffPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			u.logger.Info("No handoff file, skipping update", zap.String("path", handoffPath))
			result.Complete(u.counters.Snapshot())
			return result, nil
		}
		return result, WrapError(err, "failed to read handoff file")
	}
	if rows == 0 {
		u.logger.Info("No records to update", zap.String("path", handoffPath))
		result.Complete(u.counters.Snapshot())
		return result, os.Remove(handoffPath)
	}

	file, err := reader.OpenCSV(handoffPath, ',')
	if err != nil {
		return result, WrapError(err, "failed to open handoff file")
	}
	defer file.Close()

	if err := file.RequireColumns(sink.HandoffHeader...); err != nil {
		return result, fmt.Errorf("%s: %w", handoffPath, err)
	}
	batchCol, _ := file.Column("batch")
	lineCol, _ := file.Column("original_line")
	recordCol, _ := file.Column("record")

	throttle := NewThrottle(u.opts.Workers, u.opts.RateLimit)
	u.logger.Info("Starting update",
		zap.String("path", handoffPath),
		zap.Int64("records", rows),
		zap.String("primaryKey", u.opts.PrimaryKey),
		zap.Bool("dryRun", u.opts.DryRun))

	pool := NewPool(ctx, u.opts.Workers, u.opts.QueueLimit(), u.logger)

	var readErr error
	for {
		row, err := file.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = WrapError(err, "failed to read handoff file")
			break
		}

		job := NewRecordJob(field(row, batchCol), field(row, lineCol), field(row, recordCol))
		if err := pool.Submit(ctx, u.updateTask(job, throttle)); err != nil {
			readErr = err
			break
		}
		result.Submitted++
	}

	poolErr := pool.Wait()
	result.Complete(u.counters.Snapshot())

	u.logger.Info("Update finished",
		zap.Int("records", result.Submitted),
		zap.Stringer("progress", result.Counts),
		zap.Duration("duration", result.Duration))

	if readErr != nil {
		return result, readErr
	}
	if poolErr != nil {
		return result, WrapError(poolErr, "update pass failed")
	}

	file.Close()
	if err := os.Remove(handoffPath); err != nil {
		return result, WrapError(err, "failed to remove handoff file")
	}
	return result, nil
}

func (u *Updater) updateTask(job RecordJob, throttle Throttle) Task {
	return func(ctx context.Context) error {
		start := time.Now()
		defer throttle.Hold(ctx, start)

		record, err := u.rebuild(job)
		if err != nil {
			return u.fail(job, record, err.Error())
		}

		keyValue, err := u.keyValue(record)
		if err != nil {
			return u.fail(job, record, err.Error())
		}

		if u.opts.DryRun {
			return u.fail(job, record, MessageDryRun)
		}

		err = u.store.Update(ctx, u.opts.TypeName, u.opts.PrimaryKey, keyValue, u.strip(record))
		u.metrics.ObserveCall(PassUpdate, time.Since(start), err)
		if err != nil {
			u.logger.Warn("Update failed",
				zap.String("batch", job.BatchID),
				zap.String("line", job.Line),
				zap.Error(err))
			return u.fail(job, record, Describe(err).Message)
		}

		if err := u.sinks.Success.Write(job.BatchID, job.Line, record.LookupString(u.opts.PrimaryKey)); err != nil {
			return err
		}
		u.counters.Add(OutcomeSuccess, 1)
		return nil
	}
}

// rebuild re-applies the transforms to the raw handoff row
func (u *Updater) rebuild(job RecordJob) (model.Record, error) {
	raw, err := DecodeRawRecord(job.Payload)
	if err != nil {
		return nil, err
	}

	line, _ := strconv.Atoi(job.Line)
	fields := make([]string, 0, len(raw))
	for f := range raw {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	flat := make(map[string]interface{}, len(raw))
	for _, f := range fields {
		value, err := u.opts.Registry.Apply(f, line, raw[f])
		if err != nil {
			return nil, err
		}
		flat[f] = value
	}
	return model.ExpandRecord(flat), nil
}

// keyValue returns the JSON encoded primary key of record
func (u *Updater) keyValue(record model.Record) (string, error) {
	v, ok := record.Lookup(u.opts.PrimaryKey)
	if !ok || v == nil {
		return "", fmt.Errorf("missing primary key %q", u.opts.PrimaryKey)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode primary key: %w", err)
	}
	return string(b), nil
}

func (u *Updater) strip(record model.Record) model.Record {
	forbidden := make([]string, 0, len(readOnlyAttributes)+len(u.opts.ForbiddenUpdateAttrs)+1)
	forbidden = append(forbidden, readOnlyAttributes...)
	forbidden = append(forbidden, u.opts.ForbiddenUpdateAttrs...)
	forbidden = append(forbidden, u.opts.PrimaryKey)
	return record.Without(forbidden...)
}

func (u *Updater) fail(job RecordJob, record model.Record, message string) error {
	err := u.sinks.Fail.Write(job.BatchID, job.Line, record.LookupString(u.opts.IdentifierField), message)
	if err != nil {
		return err
	}
	u.counters.Add(OutcomePermanentFailure, 1)
	return nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
