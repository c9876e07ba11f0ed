package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/sink"
)

// SinkCount is the number of records found in one outcome log
type SinkCount struct {
	Kind    string
	Path    string
	Records int64
	Exists  bool
}

// Summary is the end-of-run report built from the outcome logs
type Summary struct {
	TypeName      string
	DryRun        bool
	Sinks         []SinkCount
	RetryRemoved  bool
	RemoteTotal   int64
	RemoteCounted bool
	StartTime     time.Time
	EndTime       time.Time

	// From the import counters; zero when only a later pass ran
	Processed        int64
	UpdateCandidates int64
}

// Count returns the records logged for kind, or 0
func (s *Summary) Count(kind string) int64 {
	for _, c := range s.Sinks {
		if c.Kind == kind {
			return c.Records
		}
	}
	return 0
}

// Duration returns the wall time of the run
func (s *Summary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Report renders the summary for the terminal
func (s *Summary) Report() string {
	success := s.Count(sink.KindSuccess)
	fail := s.Count(sink.KindFail)
	retry := s.Count(sink.KindRetry)
	candidates := s.UpdateCandidates
	total := success + fail + retry + candidates
	if s.Processed > total {
		total = s.Processed
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
Dataload Summary
================
Entity Type:             %s
Duration:                %s
Start Time:              %s
End Time:                %s
Dry Run:                 %t

Import
------
Total Processed:         %d
Imported:                %d (%.1f%%)
Failed:                  %d (%.1f%%)
Retry:                   %d (%.1f%%)
`,
		s.TypeName,
		formatDuration(s.Duration()),
		s.StartTime.Format(time.RFC3339),
		s.EndTime.Format(time.RFC3339),
		s.DryRun,
		total,
		success, getPercentage(float64(success), float64(total)),
		fail, getPercentage(float64(fail), float64(total)),
		retry, getPercentage(float64(retry), float64(total)),
	)
	if candidates > 0 {
		fmt.Fprintf(&b, "Update Candidates:       %d (%.1f%%)\n",
			candidates, getPercentage(float64(candidates), float64(total)))
	}

	if s.has(sink.KindUpdateSuccess) || s.has(sink.KindUpdateFail) {
		fmt.Fprintf(&b, `
Update
------
Updated:                 %d
Update Failed:           %d
`,
			s.Count(sink.KindUpdateSuccess),
			s.Count(sink.KindUpdateFail),
		)
	}

	b.WriteString("\nFiles\n-----\n")
	for _, c := range s.Sinks {
		if !c.Exists {
			continue
		}
		fmt.Fprintf(&b, "%-24s %s\n", c.Kind+":", c.Path)
	}
	if s.RetryRemoved {
		b.WriteString("No records to retry, retry file removed\n")
	}

	if s.RemoteCounted {
		fmt.Fprintf(&b, "\nTotal %s entities:   %d\n", s.TypeName, s.RemoteTotal)
	}
	return b.String()
}

func (s *Summary) has(kind string) bool {
	for _, c := range s.Sinks {
		if c.Kind == kind && c.Exists {
			return true
		}
	}
	return false
}

// Finalizer summarizes a finished run from its outcome logs
type Finalizer struct {
	store  EntityStore
	opts   Options
	files  sink.RunFiles
	pass   *PassResult
	logger *zap.Logger
}

// NewFinalizer creates a finalizer for the run whose logs are named by files
func NewFinalizer(store EntityStore, opts Options, files sink.RunFiles, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		store:  store,
		opts:   opts.withDefaults(),
		files:  files,
		logger: logger.Named("finalize"),
	}
}

// WithImport adds the import pass counters to the summary, so records
// handed to the update pass are part of the processed total.
func (f *Finalizer) WithImport(pass *PassResult) *Finalizer {
	f.pass = pass
	return f
}

// Run counts every outcome log, removes an empty retry file and, unless
// this is a dry run, asks the store for the entity total.
func (f *Finalizer) Run(ctx context.Context, start time.Time) (*Summary, error) {
	summary := &Summary{
		TypeName:  f.opts.TypeName,
		DryRun:    f.opts.DryRun,
		StartTime: start,
	}
	if f.pass != nil {
		summary.Processed = f.pass.Counts.Total()
		summary.UpdateCandidates = f.pass.Counts.Duplicate
	}

	kinds := []string{sink.KindSuccess, sink.KindFail, sink.KindRetry, sink.KindUpdateSuccess, sink.KindUpdateFail}
	for _, kind := range kinds {
		c, err := countSink(kind, f.files.Path(kind), f.sinkDelimiter(kind))
		if err != nil {
			return nil, err
		}
		summary.Sinks = append(summary.Sinks, c)
	}

	removed, err := sink.RemoveIfEmpty(f.files.Path(sink.KindRetry), sink.WithDelimiter(f.opts.Delimiter))
	if err != nil {
		return nil, WrapError(err, "failed to remove retry file")
	}
	if removed {
		summary.RetryRemoved = true
		for i := range summary.Sinks {
			if summary.Sinks[i].Kind == sink.KindRetry {
				summary.Sinks[i].Exists = false
			}
		}
	}

	if !f.opts.DryRun {
		total, err := f.store.Count(ctx, f.opts.TypeName)
		if err != nil {
			f.logger.Warn("Failed to count remote entities", zap.Error(err))
		} else {
			summary.RemoteTotal = total
			summary.RemoteCounted = true
		}
	}

	summary.EndTime = time.Now()
	f.logger.Info("Run finalized",
		zap.Int64("success", summary.Count(sink.KindSuccess)),
		zap.Int64("fail", summary.Count(sink.KindFail)),
		zap.Int64("retry", summary.Count(sink.KindRetry)),
		zap.Int64("updateSuccess", summary.Count(sink.KindUpdateSuccess)),
		zap.Int64("updateFail", summary.Count(sink.KindUpdateFail)),
		zap.Duration("duration", summary.Duration()))
	return summary, nil
}

// sinkDelimiter returns the delimiter kind was written with. Only the retry
// file follows the input file.
func (f *Finalizer) sinkDelimiter(kind string) rune {
	if kind == sink.KindRetry {
		return f.opts.Delimiter
	}
	return ','
}

func countSink(kind, path string, delimiter rune) (SinkCount, error) {
	c := SinkCount{Kind: kind, Path: path}
	n, err := sink.CountRecords(path, sink.WithDelimiter(delimiter))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, WrapError(err, "failed to count "+kind+" records")
	}
	c.Records = n
	c.Exists = true
	return c, nil
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// getPercentage safely calculates a percentage, avoiding division by zero
func getPercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}
