// Package checkpoint persists backfill progress as a JSON file.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
)

// DefaultFileName is used when no checkpoint path is configured
const DefaultFileName = "migration_checkpoint.json"

// FileStore keeps a single checkpoint in a JSON file. Saves replace the file
// atomically so an interrupted write never leaves a truncated checkpoint.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

var _ integration.CheckpointStore = (*FileStore)(nil)

// NewFileStore creates a store backed by path
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if path == "" {
		path = DefaultFileName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger.Named("checkpoint")}
}

// Path returns the checkpoint file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint. It returns integration.ErrCheckpointNotFound when
// the file does not exist.
func (s *FileStore) Load(ctx context.Context) (*integration.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, integration.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp integration.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	s.logger.Debug("Loaded checkpoint", zap.String("path", s.path), zap.String("phase", string(cp.Phase)))
	return &cp, nil
}

// Save writes cp to a temp file in the same directory and renames it over
// the checkpoint.
func (s *FileStore) Save(ctx context.Context, cp *integration.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint: nil checkpoint")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Reset removes the checkpoint. A missing file is not an error.
func (s *FileStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	s.logger.Info("Checkpoint reset", zap.String("path", s.path))
	return nil
}
