package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/David-Botos/entity-dataload/pkg/sink"
)

func TestSummaryReportTotals(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	base := Summary{
		TypeName:  "user",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Sinks: []SinkCount{
			{Kind: sink.KindSuccess, Records: 6, Exists: true},
			{Kind: sink.KindFail, Records: 1, Exists: true},
			{Kind: sink.KindRetry, Records: 1, Exists: true},
		},
	}

	t.Run("from outcome logs", func(t *testing.T) {
		s := base
		report := s.Report()
		assert.Contains(t, report, "Total Processed:         8")
		assert.Contains(t, report, "Imported:                6 (75.0%)")
		assert.NotContains(t, report, "Update Candidates")
	})

	t.Run("update candidates count toward the total", func(t *testing.T) {
		s := base
		s.UpdateCandidates = 2
		report := s.Report()
		assert.Contains(t, report, "Total Processed:         10")
		assert.Contains(t, report, "Imported:                6 (60.0%)")
		assert.Contains(t, report, "Update Candidates:       2 (20.0%)")
	})

	t.Run("import counters win when larger", func(t *testing.T) {
		s := base
		s.Processed = 16
		report := s.Report()
		assert.Contains(t, report, "Total Processed:         16")
		assert.Contains(t, report, "Imported:                6 (37.5%)")
	})
}
