package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JSONFile keeps every key in one JSON document, rewritten atomically on
// each Set. A document that cannot be decoded is moved aside and the store
// starts empty.
type JSONFile struct {
	filePath string
	logger   *zap.Logger
	mu       sync.RWMutex
	entries  map[string]string
}

func NewJSONFile(filePath string, logger *zap.Logger) (*JSONFile, error) {
	if filePath == "" {
		return nil, errors.New("json store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &JSONFile{filePath: filePath, logger: logger, entries: make(map[string]string)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONFile) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, errEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (s *JSONFile) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.entries[key]
	s.entries[key] = string(value)
	if err := s.persistLocked(); err != nil {
		if existed {
			s.entries[key] = previous
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *JSONFile) Close() error {
	return nil
}

func (s *JSONFile) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read json store: %w", err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		s.quarantineLocked(err)
		return nil
	}
	s.entries = entries
	return nil
}

func (s *JSONFile) quarantineLocked(decodeErr error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.filePath, time.Now().UnixNano())
	fields := []zap.Field{zap.String("path", s.filePath), zap.Error(decodeErr)}
	if err := os.Rename(s.filePath, aside); err != nil {
		s.logger.Warn("json store is corrupt; starting empty", append(fields, zap.NamedError("rename_error", err))...)
		return
	}
	s.logger.Warn("json store is corrupt; moved aside and starting empty", append(fields, zap.String("moved_to", aside))...)
}

func (s *JSONFile) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write json store: %w", err)
	}
	return os.Rename(tmpPath, s.filePath)
}
