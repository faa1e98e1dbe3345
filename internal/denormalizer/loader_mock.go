package denormalizer

import (
	"context"
	"sync"

	"github.com/hanpama/gqlcache/internal/record"
)

// Call records one LoadRecords invocation of a MockLoader.
type Call struct {
	BatchID int
	Keys    []string
}

// MockLoader serves records from a map and logs every batch it is asked for.
type MockLoader struct {
	mu       sync.Mutex
	records  map[string]*record.Record
	calls    []Call
	batchSeq int
	err      error
}

// NewMockLoader creates a MockLoader over the given records.
func NewMockLoader(records map[string]*record.Record) *MockLoader {
	m := &MockLoader{records: make(map[string]*record.Record, len(records))}
	for k, r := range records {
		m.records[k] = r
	}
	return m
}

// SetError makes every following call fail with err.
func (m *MockLoader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockLoader) LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSeq++
	m.calls = append(m.calls, Call{BatchID: m.batchSeq, Keys: append([]string(nil), keys...)})
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*record.Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := m.records[k]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetCalls returns a copy of the call log.
func (m *MockLoader) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
