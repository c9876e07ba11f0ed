package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/entity-dataload/pkg/entityapi"
	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/sink"
)

type updateCall struct {
	KeyAttribute string
	KeyValue     string
	Value        model.Record
}

// fakeStore is an in-memory EntityStore. Hooks decide the response of each
// call; unset hooks succeed.
type fakeStore struct {
	mu          sync.Mutex
	bulkCalls   int
	bulkRecords int
	updates     []updateCall
	deletes     []string
	countCalls  int

	bulkCreate func(records []model.Record) (*entityapi.BulkCreateResult, error)
	update     func(keyValue string) error
	delete     func(id string) error
}

func (s *fakeStore) BulkCreate(_ context.Context, _ string, records []model.Record) (*entityapi.BulkCreateResult, error) {
	s.mu.Lock()
	s.bulkCalls++
	s.bulkRecords += len(records)
	s.mu.Unlock()

	if s.bulkCreate != nil {
		return s.bulkCreate(records)
	}
	return allCreated(records), nil
}

func (s *fakeStore) Update(_ context.Context, _ string, keyAttribute, keyValue string, value model.Record) error {
	s.mu.Lock()
	s.updates = append(s.updates, updateCall{KeyAttribute: keyAttribute, KeyValue: keyValue, Value: value})
	s.mu.Unlock()

	if s.update != nil {
		return s.update(keyValue)
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, _ string, id string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, id)
	s.mu.Unlock()

	if s.delete != nil {
		return s.delete(id)
	}
	return nil
}

func (s *fakeStore) Count(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	return 42, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkCalls
}

func allCreated(records []model.Record) *entityapi.BulkCreateResult {
	res := &entityapi.BulkCreateResult{Stat: "ok"}
	for i := range records {
		res.Results = append(res.Results, entityapi.RecordResult{UUID: fmt.Sprintf("uuid-%d", i), Stat: "ok"})
	}
	return res
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 2
	opts.RateLimit = 0
	return opts
}

func writeInput(t *testing.T, dir string, emails ...string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("email,givenName\n")
	for i, e := range emails {
		fmt.Fprintf(&sb, "%s,User %d\n", e, i+1)
	}
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func emails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%d@example.com", i+1)
	}
	return out
}

func newReader(t *testing.T, path string, batchSize int) *reader.BatchReader {
	t.Helper()
	r, err := reader.NewBatchReader(path, batchSize, 1, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// readRows returns the records of a CSV log, header excluded
func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := reader.OpenCSV(path, ',')
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.Reader.ReadAll()
	require.NoError(t, err)
	return rows
}

func newImportSinks(t *testing.T, files sink.RunFiles, delta bool) ImportSinks {
	t.Helper()
	var s ImportSinks
	var err error
	s.Success, err = sink.Create(files.Path(sink.KindSuccess), sink.SuccessHeader)
	require.NoError(t, err)
	s.Fail, err = sink.Create(files.Path(sink.KindFail), sink.FailHeader)
	require.NoError(t, err)
	s.Retry, err = sink.Create(files.Path(sink.KindRetry), []string{"email", "givenName"})
	require.NoError(t, err)
	if delta {
		s.Handoff, err = sink.CreateTemp(files.Dir, "handoff_*.csv", sink.HandoffHeader)
		require.NoError(t, err)
	}
	t.Cleanup(func() { closeImportSinks(s) })
	return s
}
