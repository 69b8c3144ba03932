package storage

import (
	"context"
	"fmt"
	"io"
)

// Reader provides read access to stored content
type Reader interface {
	// GetReader returns a reader for the content at the given key
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if content exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}

// Metadata contains storage object metadata
type Metadata struct {
	Size        int64
	ContentType string
	FileName    string
}

// ReaderWithMetadata provides read access with metadata
type ReaderWithMetadata interface {
	Reader

	// GetMetadata returns metadata for content at the given key
	GetMetadata(ctx context.Context, key string) (*Metadata, error)
}

// Variant names a derived output, e.g. "preflight_thumbnail_v2"
func Variant(derivedType string, derivedVersion int) string {
	return fmt.Sprintf("%s_v%d", derivedType, derivedVersion)
}

var (
	_ ReaderWithMetadata = (*ContentService)(nil)
	_ ReaderWithMetadata = (*HTTPContentReader)(nil)
	_ ReaderWithMetadata = (*FilesystemStorage)(nil)
)
