package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// SaveFailureRecorder is an optional hook for recording persistence
// failures as a durability-warning metric.
type SaveFailureRecorder interface {
	RecordRegistrySaveFailure()
}

// FileStore keeps the whole registry in memory and rewrites it to a
// single JSON file on every mutation. The file is replaced atomically
// (temp file + fsync + rename) so readers and crashes never observe a
// partial table.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	logger  *slog.Logger
	metrics SaveFailureRecorder
}

// Open loads the registry from path, or starts empty if the file is
// absent. A corrupt or unreadable file must not prevent startup: the
// condition is logged and the registry degrades to empty.
func Open(path string, metrics SaveFailureRecorder) *FileStore {
	s := &FileStore{
		path:    path,
		records: make(map[string]Record),
		logger:  slog.With("component", "registry"),
		metrics: metrics,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		s.logger.Warn("Failed to read registry file, starting empty", "path", path, "error", err)
		return s
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		s.logger.Warn("Registry file corrupt, starting empty", "path", path, "error", err)
		s.records = make(map[string]Record)
		return s
	}
	s.logger.Info("Loaded registry", "path", path, "records", len(s.records))
	return s
}

// Get returns the record for a handle, if present.
func (s *FileStore) Get(handle string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[handle]
	return rec, ok
}

// All returns a copy of every record.
func (s *FileStore) All() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.records))
	for h, rec := range s.records {
		out[h] = rec
	}
	return out
}

// Put writes a record and flushes the full table to disk before
// returning. A flush failure is logged and counted but does not fail
// the mutation: the in-memory state remains authoritative for this
// process lifetime.
func (s *FileStore) Put(handle string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.records[handle]; ok && !CanTransition(prev.Status, rec.Status) {
		return fmt.Errorf("%w: %s -> %s for handle %s", ErrInvalidTransition, prev.Status, rec.Status, handle)
	}
	s.records[handle] = rec

	if err := s.save(); err != nil {
		s.logger.Error("Failed to persist registry, continuing with in-memory state", "handle", handle, "error", err)
		if s.metrics != nil {
			s.metrics.RecordRegistrySaveFailure()
		}
	}
	return nil
}

// Clear removes every record and deletes the backing file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Record)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove registry file: %w", err)
	}
	s.logger.Info("Cleared registry", "path", s.path)
	return nil
}

// save rewrites the whole table atomically. Caller holds the lock.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// Verify FileStore implements Store
var _ Store = (*FileStore)(nil)
