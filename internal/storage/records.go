package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alznet/niev/internal/types"
)

// RecordStore represents the set of finalized atomic execution records.
// When baseDir is set every record is also written to baseDir/records/<id>.json.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*types.AtomicRecord
	baseDir string
}

// NewRecordStore creates a new record store. An empty baseDir keeps records in memory only.
func NewRecordStore(baseDir string) (*RecordStore, error) {
	if baseDir != "" {
		if err := os.MkdirAll(filepath.Join(baseDir, "records"), 0755); err != nil {
			return nil, fmt.Errorf("failed to create records directory: %v", err)
		}
	}
	return &RecordStore{
		records: make(map[string]*types.AtomicRecord),
		baseDir: baseDir,
	}, nil
}

// Save stores a finalized record
func (s *RecordStore) Save(record *types.AtomicRecord) error {
	if record == nil || record.ExecutionID == "" {
		return fmt.Errorf("record without execution id")
	}
	if !validID(record.ExecutionID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, record.ExecutionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ExecutionID]; exists {
		return fmt.Errorf("record %s already finalized", record.ExecutionID)
	}
	s.records[record.ExecutionID] = record

	if s.baseDir == "" {
		return nil
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %v", err)
	}
	recordFile := filepath.Join(s.baseDir, "records", record.ExecutionID+".json")
	if err := os.WriteFile(recordFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save record: %v", err)
	}
	return nil
}

// Get returns a record by execution id, falling back to disk
func (s *RecordStore) Get(id string) (*types.AtomicRecord, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	if ok {
		return record, nil
	}
	if s.baseDir == "" {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, "records", id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record file: %v", err)
	}

	var loaded types.AtomicRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %v", err)
	}
	return &loaded, nil
}

// List returns the in-memory records, newest first
func (s *RecordStore) List() []*types.AtomicRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*types.AtomicRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].ExecutionID > records[j].ExecutionID
	})
	return records
}

// validID accepts ids that name a file directly inside the records directory
func validID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		filepath.Base(id) == id && !strings.ContainsAny(id, `/\`)
}
