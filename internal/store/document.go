package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Documents reads and writes JSON collections against the remote repository,
// mirroring every successful read to the local filesystem. The mirror is
// consulted only when the remote store is unavailable or empty.
type Documents struct {
	remote    RemoteClient
	mirrorDir string
	logger    *zap.Logger
}

// NewDocuments creates a document store backed by the given remote client.
func NewDocuments(remote RemoteClient, mirrorDir string, logger *zap.Logger) *Documents {
	return &Documents{
		remote:    remote,
		mirrorDir: mirrorDir,
		logger:    logger.Named("documents"),
	}
}

// Load tries each candidate path in order against the remote store; the first
// existing one wins. When every remote read fails, the local mirror of the
// canonical (first) path is used instead.
func (d *Documents) Load(ctx context.Context, candidatePaths []string) ([]byte, error) {
	var lastErr error

	for _, path := range candidatePaths {
		content, err := d.remote.Read(ctx, path)
		if err == nil {
			d.mirror(path, content)
			return content, nil
		}

		lastErr = err

		if errors.Is(err, ErrNotFound) {
			continue
		}

		d.logger.Warn("Remote read failed, will try fallbacks",
			zap.String("path", path),
			zap.Error(err))
	}

	// Remote exhausted: consult the mirror of the canonical path
	if len(candidatePaths) > 0 {
		if content, err := d.readMirror(candidatePaths[0]); err == nil {
			d.logger.Warn("Serving document from local mirror",
				zap.String("path", candidatePaths[0]))

			return content, nil
		}
	}

	if lastErr == nil {
		lastErr = ErrNotFound
	}

	return nil, lastErr
}

// Save writes to the canonical path on the remote store and refreshes the
// mirror. A failed remote write is reported but the mirror is still updated,
// so in-memory state and local fallback stay ahead of the remote copy.
func (d *Documents) Save(ctx context.Context, canonicalPath string, content []byte, message string) error {
	d.mirror(canonicalPath, content)

	if err := d.remote.Write(ctx, canonicalPath, content, message); err != nil {
		d.logger.Error("Remote write failed, local mirror updated",
			zap.String("path", canonicalPath),
			zap.Error(err))

		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	return nil
}

func (d *Documents) mirrorPath(path string) string {
	return filepath.Join(d.mirrorDir, filepath.FromSlash(path))
}

func (d *Documents) mirror(path string, content []byte) {
	target := d.mirrorPath(path)

	if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
		d.logger.Warn("Failed to create mirror directory", zap.Error(err))
		return
	}

	if err := os.WriteFile(target, content, 0o644); err != nil {
		d.logger.Warn("Failed to write mirror file",
			zap.String("path", target),
			zap.Error(err))
	}
}

func (d *Documents) readMirror(path string) ([]byte, error) {
	return os.ReadFile(d.mirrorPath(path))
}
