// Package kvstore provides the key-value engines behind persisted app state.
package kvstore

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tadwir/internal/ports"
)

const (
	EngineSQLite = "sqlite"
	EngineJSON   = "json"
	EngineMemory = "memory"
)

// Store is a closable key-value engine.
type Store interface {
	ports.KeyValueStore
	Close() error
}

var errEmptyKey = errors.New("empty key")

// NewByEngine opens the engine named by engine at path.
func NewByEngine(engine string, path string, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineSQLite:
		return NewSQLite(path)
	case EngineJSON:
		return NewJSONFile(path, logger)
	case EngineMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store engine: %q", engine)
	}
}
