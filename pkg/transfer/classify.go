package transfer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/entityapi"
	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/sink"
)

// ImportSinks are the outcome logs of the import pass
type ImportSinks struct {
	Success *sink.Writer
	Fail    *sink.Writer
	Retry   *sink.Writer
	Handoff *sink.Writer // nil unless delta migration is on
}

// Recorder routes every record of a batch to exactly one outcome log and
// counts it. It is shared by all workers of the import pass.
type Recorder struct {
	sinks      ImportSinks
	counters   *Counters
	policy     RetryPolicy
	header     []string
	identifier string
	delta      bool
	logger     *zap.Logger
}

// NewRecorder creates a recorder. header is the input header, used to
// serialize handoff rows.
func NewRecorder(sinks ImportSinks, counters *Counters, policy RetryPolicy, header []string, identifier string, delta bool, logger *zap.Logger) *Recorder {
	return &Recorder{
		sinks:      sinks,
		counters:   counters,
		policy:     policy,
		header:     header,
		identifier: identifier,
		delta:      delta && sinks.Handoff != nil,
		logger:     logger,
	}
}

// BatchResult records the per-record outcomes of a completed bulk create
func (r *Recorder) BatchResult(batch *model.Batch, result *entityapi.BulkCreateResult) error {
	if !result.OK() {
		r.logger.Warn("Unexpected API response",
			zap.Int("batch", batch.ID),
			zap.Int("line", batch.StartLine))
		return r.failAll(batch, MessageUnexpectedResponse)
	}

	for i, record := range batch.Records {
		line := batch.LineOf(i)
		if i >= len(result.Results) {
			if err := r.fail(batch.ID, line, record, MessageMissingResult); err != nil {
				return err
			}
			continue
		}

		res := result.Results[i]
		switch ClassifyRecord(res, r.delta) {
		case OutcomeSuccess:
			if err := r.success(batch.ID, line, record, res.UUID); err != nil {
				return err
			}
		case OutcomeUpdateCandidate:
			if err := r.handoff(batch.ID, line, batch.Originals[i]); err != nil {
				return err
			}
		default:
			if err := r.fail(batch.ID, line, record, res.Description); err != nil {
				return err
			}
		}
	}
	return nil
}

// CallFailed records the outcome of a bulk create that failed as a whole
func (r *Recorder) CallFailed(batch *model.Batch, err error) error {
	outcome, desc := r.policy.ClassifyCall(err)

	logger := r.logger.With(
		zap.Int("batch", batch.ID),
		zap.Int("line", batch.StartLine),
		zap.String("taxonomy", string(desc.Taxonomy)),
		zap.Int("code", desc.Code))

	if outcome == OutcomeRetryCandidate {
		logger.Warn("Batch queued for retry", zap.Error(err))
		if werr := r.sinks.Retry.WriteAll(batch.Originals); werr != nil {
			return werr
		}
		r.counters.Add(OutcomeRetryCandidate, batch.Len())
		return nil
	}

	logger.Error("Batch failed", zap.Error(err))
	return r.failAll(batch, desc.Message)
}

// DryRun records every record of batch as skipped
func (r *Recorder) DryRun(batch *model.Batch) error {
	return r.failAll(batch, MessageDryRun)
}

func (r *Recorder) failAll(batch *model.Batch, message string) error {
	rows := make([][]string, batch.Len())
	for i, record := range batch.Records {
		rows[i] = []string{
			strconv.Itoa(batch.ID),
			strconv.Itoa(batch.LineOf(i)),
			record.LookupString(r.identifier),
			message,
		}
	}
	if err := r.sinks.Fail.WriteAll(rows); err != nil {
		return err
	}
	r.counters.Add(OutcomePermanentFailure, batch.Len())
	return nil
}

func (r *Recorder) success(batchID, line int, record model.Record, remoteID string) error {
	err := r.sinks.Success.Write(
		strconv.Itoa(batchID),
		strconv.Itoa(line),
		remoteID,
		record.LookupString(r.identifier))
	if err != nil {
		return err
	}
	r.counters.Add(OutcomeSuccess, 1)
	return nil
}

func (r *Recorder) fail(batchID, line int, record model.Record, message string) error {
	r.logger.Debug("Record failed",
		zap.Int("batch", batchID),
		zap.Int("line", line),
		zap.String("error", message))

	err := r.sinks.Fail.Write(
		strconv.Itoa(batchID),
		strconv.Itoa(line),
		record.LookupString(r.identifier),
		message)
	if err != nil {
		return err
	}
	r.counters.Add(OutcomePermanentFailure, 1)
	return nil
}

func (r *Recorder) handoff(batchID, line int, original []string) error {
	raw, err := EncodeRawRecord(r.header, original)
	if err != nil {
		return fmt.Errorf("line %d: %w", line, err)
	}
	if err := r.sinks.Handoff.Write(strconv.Itoa(batchID), strconv.Itoa(line), raw); err != nil {
		return err
	}
	r.counters.Add(OutcomeUpdateCandidate, 1)
	return nil
}

// EncodeRawRecord serializes an untransformed row as a header to value JSON object.
// Missing trailing fields are encoded as "".
func EncodeRawRecord(header, row []string) (string, error) {
	m := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(row) {
			m[name] = row[i]
		} else {
			m[name] = ""
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode raw record: %w", err)
	}
	return string(b), nil
}

// DecodeRawRecord is the inverse of EncodeRawRecord
func DecodeRawRecord(raw string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode raw record: %w", err)
	}
	return m, nil
}
