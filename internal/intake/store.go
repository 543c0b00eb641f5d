package intake

import (
	"encoding/json"
	"sort"
	"sync"

	"browser-steps/internal/analysis"
)

// Record is a raw result report, kept independently of any session.
type Record struct {
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result"`
	Error     *string         `json:"error"`
	Timestamp float64         `json:"timestamp"`
}

// ResultStore holds result records keyed by command ID.
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[string]Record)}
}

func (s *ResultStore) Put(rec Record) {
	s.mu.Lock()
	s.records[rec.CommandID] = rec
	s.mu.Unlock()
}

func (s *ResultStore) Get(commandID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[commandID]
	return rec, ok
}

func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *ResultStore) Clear() {
	s.mu.Lock()
	s.records = make(map[string]Record)
	s.mu.Unlock()
}

// AnalysisStore holds analysis records keyed by command ID.
type AnalysisStore struct {
	mu      sync.RWMutex
	records map[string]analysis.Record
}

func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{records: make(map[string]analysis.Record)}
}

func (s *AnalysisStore) Put(rec analysis.Record) {
	s.mu.Lock()
	s.records[rec.CommandID] = rec
	s.mu.Unlock()
}

func (s *AnalysisStore) Get(commandID string) (analysis.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[commandID]
	return rec, ok
}

// List returns all records, most recently processed first.
func (s *AnalysisStore) List() []analysis.Record {
	s.mu.RLock()
	out := make([]analysis.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out
}

func (s *AnalysisStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *AnalysisStore) Clear() {
	s.mu.Lock()
	s.records = make(map[string]analysis.Record)
	s.mu.Unlock()
}
