package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for keys that resolve outside the base directory
var ErrPathTraversal = errors.New("invalid key: path traversal detected")

// derivedDir holds derived outputs under the base directory
const derivedDir = ".derived"

// FilesystemStorage serves content from a local directory. Keys are paths
// relative to the base directory. Derived outputs are written under
// <base>/.derived/<key>/<variant><ext>.
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a new filesystem storage
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: filepath.Clean(baseDir),
	}, nil
}

func (fs *FilesystemStorage) resolve(parts ...string) (string, error) {
	path := filepath.Clean(filepath.Join(append([]string{fs.baseDir}, parts...)...))
	if path != fs.baseDir && !strings.HasPrefix(path, fs.baseDir+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return path, nil
}

// GetReader returns a reader for the file at the given key
func (fs *FilesystemStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// GetReaderByContentID lets FilesystemStorage act as a workflow content reader
func (fs *FilesystemStorage) GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	return fs.GetReader(ctx, contentID)
}

// Exists checks if a file exists at the given key
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// GetMetadata returns the size of the file at the given key. The content
// type is left empty; it is sniffed from the bytes during preflight.
func (fs *FilesystemStorage) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &Metadata{
		Size:     info.Size(),
		FileName: filepath.Base(path),
	}, nil
}

// HasDerived checks for a derived output of the given type and version
func (fs *FilesystemStorage) HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error) {
	dir, err := fs.resolve(derivedDir, contentID)
	if err != nil {
		return false, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, Variant(derivedType, derivedVersion)+".*"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// PutDerived writes a derived output and returns its key
func (fs *FilesystemStorage) PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error) {
	dir, err := fs.resolve(derivedDir, contentID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create derived directory: %w", err)
	}

	ext := filepath.Ext(meta["file_name"])
	if ext == "" {
		ext = ".dat"
	}
	path := filepath.Join(dir, Variant(derivedType, derivedVersion)+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create derived file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write derived file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(fs.baseDir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
