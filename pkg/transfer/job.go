package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/entity-dataload/pkg/model"
)

// BatchJob is one bulk create call for a batch read from the input file
type BatchJob struct {
	ID        string       // Unique job identifier
	Batch     *model.Batch // Batch to create
	CreatedAt time.Time    // Submission timestamp
}

// NewBatchJob wraps a batch for submission to the pool
func NewBatchJob(batch *model.Batch) BatchJob {
	return BatchJob{
		ID:        uuid.New().String(),
		Batch:     batch,
		CreatedAt: time.Now(),
	}
}

// Lines returns the inclusive source line range of the job
func (j BatchJob) Lines() string {
	return fmt.Sprintf("%d-%d", j.Batch.StartLine, j.Batch.EndLine)
}

// RecordJob is one single-record call of the update or rollback pass
type RecordJob struct {
	ID        string            // Unique job identifier
	BatchID   string            // Batch the record was imported in
	Line      string            // Source line of the record
	Payload   string            // Serialized record or remote id
	Fields    map[string]string // Extra columns carried from the input log
	CreatedAt time.Time
}

// NewRecordJob creates a record-level job
func NewRecordJob(batchID, line, payload string) RecordJob {
	return RecordJob{
		ID:        uuid.New().String(),
		BatchID:   batchID,
		Line:      line,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// WithField attaches an extra column and returns the modified job
func (j RecordJob) WithField(name, value string) RecordJob {
	fields := make(map[string]string, len(j.Fields)+1)
	for k, v := range j.Fields {
		fields[k] = v
	}
	fields[name] = value
	j.Fields = fields
	return j
}

// Field returns an extra column, or ""
func (j RecordJob) Field(name string) string {
	return j.Fields[name]
}

// PassResult summarizes one pass over the pool
type PassResult struct {
	Pass      string
	Submitted int // Jobs handed to the pool
	Counts    CounterSnapshot
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// NewPassResult starts timing a pass
func NewPassResult(pass string) *PassResult {
	return &PassResult{
		Pass:      pass,
		StartTime: time.Now(),
	}
}

// Complete records the final counters and duration
func (r *PassResult) Complete(counts CounterSnapshot) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Counts = counts
}
