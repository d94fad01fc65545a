package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/cl-extractor/pkg/record"
	"github.com/rs/zerolog"
)

// LocalSink writes artifacts below a root directory.
type LocalSink struct {
	root   string
	logger zerolog.Logger
}

// NewLocalSink creates a sink rooted at root.
func NewLocalSink(root string, logger zerolog.Logger) *LocalSink {
	return &LocalSink{
		root:   root,
		logger: logger.With().Str("component", "local-sink").Logger(),
	}
}

// Root returns the root directory.
func (s *LocalSink) Root() string {
	return s.root
}

// Write encodes records and writes them to root/destination. Parent
// directories are created; the file appears atomically.
func (s *LocalSink) Write(ctx context.Context, records []record.Record, destination string) (Artifact, error) {
	data, err := EncodeCSV(records)
	if err != nil {
		if errors.Is(err, ErrNothingToWrite) {
			return Artifact{}, err
		}
		writesTotal.WithLabelValues(KindLocal, "failure").Inc()
		return Artifact{}, &WriteError{Destination: destination, Err: err}
	}

	if !filepath.IsLocal(destination) {
		writesTotal.WithLabelValues(KindLocal, "failure").Inc()
		return Artifact{}, &WriteError{Destination: destination, Err: fmt.Errorf("destination escapes root %s", s.root)}
	}

	path := filepath.Join(s.root, destination)
	if err := writeFileAtomic(path, data); err != nil {
		writesTotal.WithLabelValues(KindLocal, "failure").Inc()
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to write artifact")
		return Artifact{}, &WriteError{Destination: destination, Err: err}
	}

	writesTotal.WithLabelValues(KindLocal, "success").Inc()
	bytesWrittenTotal.WithLabelValues(KindLocal).Add(float64(len(data)))

	location, err := filepath.Abs(path)
	if err != nil {
		location = path
	}
	s.logger.Info().
		Str("path", location).
		Int("records", len(records)).
		Msg("Wrote artifact")

	return Artifact{Location: location, Records: len(records), Bytes: len(data)}, nil
}

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
	defer os.Remove(tmpName)

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
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
