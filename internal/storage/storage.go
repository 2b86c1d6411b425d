// Package storage persists turn records as JSON files under the state
// directory, so a session's authorization history survives across runs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

// CallRecord is one call's terminal outcome in a persisted turn.
type CallRecord struct {
	CallID   string `json:"callID"`
	ToolName string `json:"toolName"`
	Outcome  string `json:"outcome"` // "executed" | "rejected" | "cancelled"
	Message  string `json:"message,omitempty"`
}

// TurnRecord is one dispatched turn as written to disk.
type TurnRecord struct {
	TurnID      string       `json:"turnID"`
	SessionID   string       `json:"sessionID"`
	Time        time.Time    `json:"time"`
	Calls       []CallRecord `json:"calls"`
	Continued   bool         `json:"continued,omitempty"`
	Instruction string       `json:"instruction,omitempty"`
}

// Store is file-based JSON storage rooted at one directory.
type Store struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *Store) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *Store) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}

// Get retrieves a value.
func (s *Store) Get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// Put stores a value with file locking and an atomic rename.
func (s *Store) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// List returns the keys under a path, without the .json extension.
func (s *Store) List(ctx context.Context, path []string) ([]string, error) {
	dir := filepath.Join(append([]string{s.basePath}, path...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, path []string) error {
	err := os.Remove(s.pathToFile(path))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SaveTurn appends a turn record to its session's history.
func (s *Store) SaveTurn(ctx context.Context, record TurnRecord) error {
	if record.SessionID == "" || record.TurnID == "" {
		return errors.New("turn record needs session and turn IDs")
	}
	if record.Time.IsZero() {
		record.Time = time.Now()
	}
	return s.Put(ctx, []string{"session", record.SessionID, record.TurnID}, record)
}

// Turns returns a session's turn records in ULID (creation) order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	ids, err := s.List(ctx, []string{"session", sessionID})
	if err != nil {
		return nil, err
	}
	records := make([]TurnRecord, 0, len(ids))
	for _, id := range ids {
		var record TurnRecord
		if err := s.Get(ctx, []string{"session", sessionID, id}, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Sessions lists the session IDs with persisted history.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	dir := filepath.Join(s.basePath, "session")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
