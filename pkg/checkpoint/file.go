package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const fileSuffix = "_checkpoint.txt"

// FileStore keeps one text checkpoint per stream in a directory.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a file-backed store rooted at dir. The directory is
// created on first save.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("backend", "file").Logger(),
	}
}

// Path returns the checkpoint file of a stream.
func (s *FileStore) Path(stream string) string {
	return filepath.Join(s.dir, stream+fileSuffix)
}

// Load reads the checkpoint of a stream, falling back to Default().
func (s *FileStore) Load(_ context.Context, stream string) Checkpoint {
	path := s.Path(stream)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Str("stream", stream).Msg("No checkpoint found, starting from page 1")
			CheckpointFallbacks.WithLabelValues("file", "missing").Inc()
		} else {
			s.logger.Warn().Err(err).Str("stream", stream).Msg("Checkpoint unreadable, starting from page 1")
			CheckpointFallbacks.WithLabelValues("file", "read_error").Inc()
		}
		return Default()
	}

	var cp Checkpoint
	if err := cp.UnmarshalText(data); err != nil {
		s.logger.Warn().Err(err).Str("stream", stream).Str("path", path).Msg("Checkpoint malformed, starting from page 1")
		CheckpointFallbacks.WithLabelValues("file", "malformed").Inc()
		return Default()
	}

	s.logger.Debug().
		Str("stream", stream).
		Int("last_page", cp.LastPage).
		Bool("has_next", cp.HasNext()).
		Msg("Checkpoint loaded")
	return cp
}

// Save replaces the checkpoint of a stream atomically.
func (s *FileStore) Save(_ context.Context, stream string, cp Checkpoint) error {
	data, err := cp.MarshalText()
	if err != nil {
		CheckpointWrites.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := writeFileAtomic(s.Path(stream), data); err != nil {
		CheckpointWrites.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("save checkpoint %s: %w", stream, err)
	}

	CheckpointWrites.WithLabelValues("file", "ok").Inc()
	return nil
}

// Delete removes the checkpoint of a stream. Deleting a missing checkpoint is not an error.
func (s *FileStore) Delete(_ context.Context, stream string) error {
	if err := os.Remove(s.Path(stream)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint %s: %w", stream, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
